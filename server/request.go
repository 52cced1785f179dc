package server

import (
	"bufio"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// maxHeaderBytes bounds the request head; anything larger is malformed
// as far as a dev server is concerned.
const maxHeaderBytes = 64 * 1024

var errMalformedRequest = errors.New("malformed request")

// Request is one parsed HTTP request. Header keys are stored lowercase.
type Request struct {
	Method        string
	RawTarget     string
	Path          string
	Query         string
	Version       string
	Body          []byte
	ContentLength int

	headers map[string]string
}

// ReadRequest accumulates bytes from the reader until the header
// terminator appears, parses the head, then reads any declared body.
// The connection deadline bounds the whole read.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	head, err := readHead(r)
	if err != nil {
		return nil, err
	}

	req, err := parseHead(head)
	if err != nil {
		return nil, err
	}

	if req.ContentLength > 0 {
		body := make([]byte, req.ContentLength)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, errMalformedRequest
		}
		req.Body = body
	}

	return req, nil
}

// readHead reads up to and including the blank line that terminates the
// header section.
func readHead(r *bufio.Reader) (string, error) {
	var head strings.Builder
	for {
		line, err := r.ReadString('\n')
		head.WriteString(line)
		if err != nil {
			return "", err
		}
		if line == "\r\n" || line == "\n" {
			return head.String(), nil
		}
		if head.Len() > maxHeaderBytes {
			return "", errMalformedRequest
		}
	}
}

func parseHead(head string) (*Request, error) {
	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 {
		return nil, errMalformedRequest
	}

	// Request line: method, target, version, all three required
	parts := strings.Fields(lines[0])
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/") {
		return nil, errMalformedRequest
	}

	req := &Request{
		Method:    parts[0],
		RawTarget: parts[1],
		Version:   parts[2],
		headers:   make(map[string]string),
	}

	if i := strings.Index(req.RawTarget, "?"); i != -1 {
		req.Path = req.RawTarget[:i]
		req.Query = req.RawTarget[i+1:]
	} else {
		req.Path = req.RawTarget
	}

	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, errMalformedRequest
		}
		req.headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	if cl := req.headers["content-length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, errMalformedRequest
		}
		req.ContentLength = n
	}

	return req, nil
}

// Headers returns a copy of all header fields, keys lowercase.
func (r *Request) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// Header returns a header value by case-insensitive name.
func (r *Request) Header(name string) string {
	return r.headers[strings.ToLower(name)]
}

// IsWebSocketUpgrade reports whether this request asks to switch to the
// WebSocket protocol. A missing Sec-WebSocket-Key still counts as an
// upgrade attempt; the handshake rejects it with a 400.
func (r *Request) IsWebSocketUpgrade() bool {
	return strings.EqualFold(r.Header("upgrade"), "websocket")
}

// QueryParams decodes the query string into a map. Parameters without
// values map to the empty string.
func (r *Request) QueryParams() map[string]string {
	params := make(map[string]string)
	if r.Query == "" {
		return params
	}
	for _, pair := range strings.Split(r.Query, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		params[key] = value
	}
	return params
}
