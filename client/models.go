package client

// Cookie is a single name/value pair sent to the worker.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Options are the per-request parameters forwarded to the worker. Zero-value
// fingerprint, user agent, body and proxy are replaced with the documented
// defaults before sending.
//
// Cookies accepts either a map[string]string or an ordered []Cookie; a map is
// normalized to an ordered []Cookie (sorted by name) before sending.
type Options struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	JA3             string            `json:"ja3"`
	UserAgent       string            `json:"userAgent"`
	Body            string            `json:"body"`
	Proxy           string            `json:"proxy"`
	Cookies         any               `json:"cookies,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	HeaderOrder     []string          `json:"headerOrder,omitempty"`
	Timeout         int               `json:"timeout,omitempty"`
	DisableRedirect bool              `json:"disableRedirect"`
}

// requestPayload is the single outbound text frame for one request.
type requestPayload struct {
	RequestID string  `json:"requestId"`
	Options   Options `json:"options"`
}

// Response is the normalized result of one request.
//
// Body holds the decoded JSON value when the worker's body parses as JSON,
// otherwise the raw string. Headers values are strings, except Set-Cookie
// which is split into an ordered []string.
type Response struct {
	Status  int
	Body    any
	Headers map[string]any
}
