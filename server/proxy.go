package server

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sambeau/sorrel/config"
)

// Hop-by-hop headers are stripped in both directions when relaying.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy forwards requests under a base path to an upstream server.
type Proxy struct {
	cfg    config.ProxyConfig
	log    *Logger
	client *http.Client
}

func NewProxy(cfg config.ProxyConfig, log *Logger) *Proxy {
	return &Proxy{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Relay redirects to the browser untouched
				return http.ErrUseLastResponse
			},
		},
	}
}

// Matches reports whether the request path falls under the proxy base.
func (p *Proxy) Matches(urlPath string) bool {
	if !p.cfg.Enabled || p.cfg.BasePath == "" {
		return false
	}
	base := strings.TrimSuffix(p.cfg.BasePath, "/")
	return urlPath == base || strings.HasPrefix(urlPath, base+"/")
}

// Forward relays the request upstream and writes the upstream response
// back to conn verbatim, minus hop-by-hop headers. Upstream failures
// produce a 502. The status written to conn is returned.
func (p *Proxy) Forward(conn net.Conn, req *Request, headerCfg responseHeaderConfig) int {
	target := strings.TrimSuffix(p.cfg.Upstream, "/") + req.RawTarget

	upReq, err := http.NewRequest(req.Method, target, bytes.NewReader(req.Body))
	if err != nil {
		return p.sendBadGateway(conn, headerCfg, err)
	}
	for name, value := range req.Headers() {
		if isHopByHop(name) || strings.EqualFold(name, "host") {
			continue
		}
		upReq.Header.Set(name, value)
	}

	resp, err := p.client.Do(upReq)
	if err != nil {
		return p.sendBadGateway(conn, headerCfg, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.sendBadGateway(conn, headerCfg, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.StatusCode, statusTextOr(resp.StatusCode))
	for name, values := range resp.Header {
		if isHopByHop(name) || strings.EqualFold(name, "Content-Length") {
			continue
		}
		for _, value := range values {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		}
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\nConnection: close\r\n\r\n", len(body))

	if _, err := conn.Write([]byte(b.String())); err != nil {
		return resp.StatusCode
	}
	conn.Write(body)
	return resp.StatusCode
}

func (p *Proxy) sendBadGateway(conn net.Conn, headerCfg responseHeaderConfig, cause error) int {
	p.log.Errorf("proxy upstream failure: %v", cause)
	page := ErrorPage(502, "Bad Gateway", "The upstream server could not be reached.", "")
	NewResponse(502, headerCfg).
		SetHeader("Content-Type", "text/html").
		SetBody(page).
		Send(conn)
	return 502
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

func statusTextOr(status int) string {
	if text, ok := statusText[status]; ok {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown"
}
