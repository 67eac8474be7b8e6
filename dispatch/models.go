package dispatch

// Envelope is a single inbound frame from the worker. The body is the raw
// response body as a string. Header values are either a single string or a
// list of strings; a single string may also hold several cookies joined by
// the worker's separator (see client package).
type Envelope struct {
	RequestID string         `json:"RequestID"`
	Status    int            `json:"Status"`
	Body      string         `json:"Body"`
	Headers   map[string]any `json:"Headers"`
	Error     string         `json:"error,omitempty"`
}
