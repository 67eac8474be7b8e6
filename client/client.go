package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tlsclient/config"
	"tlsclient/dispatch"
	"tlsclient/logging"
	"tlsclient/transport"
)

const (
	// DefaultJA3 is the TLS fingerprint used when the caller supplies none.
	DefaultJA3 = "771,4865-4867-4866-49195-49199-52393-52392-49196-49200-49162-49161-49171-49172-51-57-47-53-10,0-23-65281-10-11-35-16-5-13-18-51-45-43-27-21,29-23-24-25-256-257,0"
	// DefaultUserAgent is the User-Agent used when the caller supplies none.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/87.0.4280.88 Safari/537.36"

	// cookieSeparator joins multiple Set-Cookie values in one inbound header
	// field.
	cookieSeparator = "/,/"

	closedReason = "connection closed"
)

// Client bridges request/response calls to the worker process over the
// control channel. Multiple calls may be outstanding at once; each resumes
// independently when its own response arrives.
type Client struct {
	role  transport.Role
	table *dispatch.Table
	sup   *transport.Supervisor
	log   *logrus.Logger
}

// New builds a client for the control channel described by cfg, negotiates
// its role and starts channel supervision. It returns without waiting for the
// channel to come up; use Ready to block until it has. Requests issued before
// then are buffered.
func New(cfg config.Config) *Client {
	if cfg.Host == "" {
		cfg.Host = config.DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = config.DefaultPort
	}
	if cfg.Debug {
		logging.InitLogger(logrus.DebugLevel)
	}

	c := &Client{
		role:  transport.Negotiate(cfg.Host, cfg.Port),
		table: dispatch.NewTable(),
		log:   logging.GetLogger(),
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.sup = transport.NewSupervisor(addr, c.role, c.table.Deliver)
	c.sup.Start()
	c.log.Debugf("Client started in %s role for %s", c.role, addr)
	return c
}

// Role reports which side of the control channel this process plays.
func (c *Client) Role() transport.Role {
	return c.role
}

// Ready blocks until the control channel is established or ctx is done.
func (c *Client) Ready(ctx context.Context) error {
	select {
	case <-c.sup.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do performs one request through the worker and blocks until the matching
// response arrives or ctx is done. The core imposes no timeout of its own:
// Options.Timeout is only a hint forwarded to the worker, so callers needing
// a bounded wait must bound ctx.
func (c *Client) Do(ctx context.Context, url string, opts Options, method string) (*Response, error) {
	if method == "" {
		method = http.MethodGet
	}
	id := newRequestID(url)
	opts.URL = url
	opts.Method = method
	applyDefaults(&opts)
	opts.Cookies = NormalizeCookies(opts.Cookies)

	frame, err := json.Marshal(requestPayload{RequestID: id, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ch := c.table.Register(id)
	if err := c.sup.Send(frame); err != nil {
		c.table.Discard(id)
		return nil, err
	}
	c.log.Debugf("Submitted %s %s as request %s (%d bytes)", method, url, id, len(frame))

	select {
	case env := <-ch:
		return buildResponse(env)
	case <-ctx.Done():
		c.table.Discard(id)
		return nil, ctx.Err()
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodGet)
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodPost)
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodPut)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodDelete)
}

// Head performs a HEAD request.
func (c *Client) Head(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodHead)
}

// Trace performs a TRACE request.
func (c *Client) Trace(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodTrace)
}

// Options performs an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodOptions)
}

// Connect performs a CONNECT request.
func (c *Client) Connect(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodConnect)
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, url string, opts Options) (*Response, error) {
	return c.Do(ctx, url, opts, http.MethodPatch)
}

// Close shuts the control channel down, then fails every still-pending call
// with a connection-closed error so no caller is left suspended. ctx bounds
// how long to wait for the shutdown.
func (c *Client) Close(ctx context.Context) error {
	err := c.sup.Shutdown(ctx)
	c.table.FailAll(closedReason)
	return err
}

// newRequestID derives a correlation id from the target URL plus enough
// entropy that collisions among outstanding requests cannot occur.
func newRequestID(url string) string {
	return url + "#" + uuid.NewString()
}

func applyDefaults(opts *Options) {
	if opts.JA3 == "" {
		opts.JA3 = DefaultJA3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
}

// buildResponse normalizes one inbound envelope. A worker-reported error
// fails the call; a body that is not valid JSON stays a raw string; joined
// Set-Cookie values are split back into an ordered list.
func buildResponse(env dispatch.Envelope) (*Response, error) {
	if env.Error != "" {
		return nil, errors.New(env.Error)
	}

	var body any
	if err := json.Unmarshal([]byte(env.Body), &body); err != nil {
		body = env.Body
	}

	headers := make(map[string]any, len(env.Headers))
	for name, value := range env.Headers {
		switch v := value.(type) {
		case string:
			if strings.EqualFold(name, "Set-Cookie") {
				headers[name] = strings.Split(v, cookieSeparator)
				continue
			}
			headers[name] = v
		case []any:
			// Already-list-shaped header values pass through as a string list.
			list := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					list = append(list, s)
				}
			}
			headers[name] = list
		default:
			headers[name] = v
		}
	}

	return &Response{
		Status:  env.Status,
		Body:    body,
		Headers: headers,
	}, nil
}
