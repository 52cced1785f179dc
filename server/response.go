package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// statusText maps the status codes the server actually sends.
var statusText = map[int]string{
	200: "OK",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// Response builds an HTTP/1.1 response byte stream. Headers keep
// insertion order; Content-Length is always set from the body on Build.
type Response struct {
	Status  int
	headers []headerPair
	body    []byte
	cfg     responseHeaderConfig
}

type headerPair struct {
	name  string
	value string
}

// responseHeaderConfig carries the server-level settings header groups
// depend on.
type responseHeaderConfig struct {
	corsEnabled        bool
	contentTypeOptions string
	frameOptions       string
	referrerPolicy     string
}

// NewResponse creates a response with the standard security headers
// already applied.
func NewResponse(status int, cfg responseHeaderConfig) *Response {
	r := &Response{Status: status, cfg: cfg}
	r.addSecurityHeaders()
	return r
}

// SetHeader sets a header, replacing any previous value.
func (r *Response) SetHeader(name, value string) *Response {
	for i := range r.headers {
		if strings.EqualFold(r.headers[i].name, name) {
			r.headers[i].value = value
			return r
		}
	}
	r.headers = append(r.headers, headerPair{name, value})
	return r
}

// SetBody sets the response body.
func (r *Response) SetBody(body []byte) *Response {
	r.body = body
	return r
}

func (r *Response) hasHeader(name string) bool {
	for i := range r.headers {
		if strings.EqualFold(r.headers[i].name, name) {
			return true
		}
	}
	return false
}

func (r *Response) addSecurityHeaders() *Response {
	if r.cfg.contentTypeOptions != "" {
		r.SetHeader("X-Content-Type-Options", r.cfg.contentTypeOptions)
	}
	if r.cfg.frameOptions != "" {
		r.SetHeader("X-Frame-Options", r.cfg.frameOptions)
	}
	if r.cfg.referrerPolicy != "" {
		r.SetHeader("Referrer-Policy", r.cfg.referrerPolicy)
	}
	return r
}

// AddCORSHeaders applies the permissive dev-server CORS triplet.
func (r *Response) AddCORSHeaders() *Response {
	r.SetHeader("Access-Control-Allow-Origin", "*")
	r.SetHeader("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	r.SetHeader("Access-Control-Allow-Headers", "Content-Type")
	return r
}

// AddCacheHeaders applies a cache-control policy, defaulting to the
// dev-server "never cache" stance.
func (r *Response) AddCacheHeaders(policy string) *Response {
	if policy == "" {
		policy = "no-cache, no-store, must-revalidate"
	}
	return r.SetHeader("Cache-Control", policy)
}

// AddCompressionHeaders marks the body as gzip encoded.
func (r *Response) AddCompressionHeaders() *Response {
	return r.SetHeader("Content-Encoding", "gzip")
}

// Build serializes the response. Header lines are CRLF terminated and
// exactly one blank line separates headers from the body.
func (r *Response) Build() []byte {
	text, ok := statusText[r.Status]
	if !ok {
		text = "Unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, text)

	// A caller-declared length wins (streamed bodies); otherwise the
	// buffered body defines it.
	if !r.hasHeader("Content-Length") {
		r.SetHeader("Content-Length", strconv.Itoa(len(r.body)))
	}
	// One request per connection; say so rather than leaving the
	// client to time out waiting for reuse.
	if !r.hasHeader("Connection") {
		r.SetHeader("Connection", "close")
	}
	for _, h := range r.headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.name, h.value)
	}
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(r.body))
	out = append(out, b.String()...)
	out = append(out, r.body...)
	return out
}

// BuildHeadersOnly serializes the status line and headers with the
// declared length but no body bytes, for HEAD requests and streamed
// responses. The caller sets Content-Length beforehand when streaming.
func (r *Response) BuildHeadersOnly() []byte {
	data := r.Build()
	if i := strings.Index(string(data), "\r\n\r\n"); i != -1 {
		return data[:i+4]
	}
	return data
}

// Send writes the full response to the connection. Write failures are
// returned, not thrown past connection cleanup.
func (r *Response) Send(conn net.Conn) error {
	if _, err := conn.Write(r.Build()); err != nil {
		return fmt.Errorf("sending response: %w", err)
	}
	return nil
}

// SendHeadersOnly writes only the header section.
func (r *Response) SendHeadersOnly(conn net.Conn) error {
	if _, err := conn.Write(r.BuildHeadersOnly()); err != nil {
		return fmt.Errorf("sending headers: %w", err)
	}
	return nil
}
