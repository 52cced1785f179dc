package server

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sambeau/sorrel/config"
)

func newTestRouter(t *testing.T, folders []string, mutate func(*config.Config)) *Router {
	t.Helper()
	cfg := config.Defaults()
	cfg.Compression.Enabled = false
	cfg.Connections.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	log := NewLogger(&bytes.Buffer{}, &bytes.Buffer{}, "error", "text")
	inj := &Injector{log: log, script: []byte("<script>/*lr*/</script>"), suppressWarn: true}
	files := NewFileServer(cfg, log, inj)
	broadcast := NewBroadcaster(log, false, true, 0, nil)
	return NewRouter(cfg, log, files, nil, broadcast, NewAdmission(10), nil,
		func() []string { return folders },
		func() bool { return false })
}

// roundTrip sends raw bytes through the router and returns everything
// written back before the connection closed.
func roundTrip(t *testing.T, rt *Router, raw string) string {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	done := make(chan struct{})
	go func() {
		rt.HandleConnection(serverEnd)
		close(done)
	}()

	if _, err := clientEnd.Write([]byte(raw)); err != nil {
		t.Fatal(err)
	}
	clientEnd.SetReadDeadline(time.Now().Add(2 * time.Second))
	var buf bytes.Buffer
	io.Copy(&buf, clientEnd)
	clientEnd.Close()
	<-done
	return buf.String()
}

func TestRouterServesFile(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "index.html", "<body>hi</body>")
	rt := newTestRouter(t, []string{dir}, nil)

	raw := roundTrip(t, rt, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	status, _, body := splitResponse(t, raw)
	if status != "HTTP/1.1 200 OK" {
		t.Errorf("status = %q", status)
	}
	if !strings.Contains(body, "/*lr*/") {
		t.Error("served HTML not injected")
	}
}

func TestRouterNotFoundWithSuggestion(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "missing.htm", "x")
	rt := newTestRouter(t, []string{dir}, nil)

	raw := roundTrip(t, rt, "GET /missing.html HTTP/1.1\r\nHost: localhost\r\n\r\n")
	status, _, body := splitResponse(t, raw)
	if !strings.HasPrefix(status, "HTTP/1.1 404") {
		t.Errorf("status = %q", status)
	}
	if !strings.Contains(body, "missing.htm") {
		t.Error("404 page missing suggestion")
	}
}

func TestRouterMalformedRequest(t *testing.T) {
	rt := newTestRouter(t, []string{t.TempDir()}, nil)
	raw := roundTrip(t, rt, "NOT A REQUEST\r\n\r\n")
	status, _, _ := splitResponse(t, raw)
	if !strings.HasPrefix(status, "HTTP/1.1 400") {
		t.Errorf("status = %q, want 400", status)
	}
}

func TestRouterHeadOmitsBody(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "a.txt", "hello")
	rt := newTestRouter(t, []string{dir}, nil)

	raw := roundTrip(t, rt, "HEAD /a.txt HTTP/1.1\r\nHost: localhost\r\n\r\n")
	_, headers, body := splitResponse(t, raw)
	if body != "" {
		t.Errorf("HEAD returned body %q", body)
	}
	if headers["content-length"] != "5" {
		t.Errorf("content-length = %q", headers["content-length"])
	}
}

func TestRouterOptionsPreflight(t *testing.T) {
	rt := newTestRouter(t, []string{t.TempDir()}, func(cfg *config.Config) {
		cfg.CORS.Enabled = true
	})
	raw := roundTrip(t, rt, "OPTIONS / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	status, headers, _ := splitResponse(t, raw)
	if !strings.HasPrefix(status, "HTTP/1.1 204") {
		t.Errorf("status = %q", status)
	}
	if headers["access-control-allow-origin"] != "*" {
		t.Errorf("CORS origin header = %q", headers["access-control-allow-origin"])
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	rt := newTestRouter(t, []string{t.TempDir()}, nil)
	raw := roundTrip(t, rt, "DELETE / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	status, headers, _ := splitResponse(t, raw)
	if !strings.HasPrefix(status, "HTTP/1.1 405") {
		t.Errorf("status = %q", status)
	}
	if headers["allow"] != "GET, HEAD, OPTIONS" {
		t.Errorf("allow = %q", headers["allow"])
	}
}

func TestRouterUpgradeWithoutKeyRejected(t *testing.T) {
	rt := newTestRouter(t, []string{t.TempDir()}, nil)
	raw := roundTrip(t, rt,
		"GET / HTTP/1.1\r\nHost: localhost\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
	status, _, body := splitResponse(t, raw)
	if !strings.HasPrefix(status, "HTTP/1.1 400") {
		t.Errorf("status = %q, want 400", status)
	}
	if !strings.Contains(body, "Sec-WebSocket-Key") {
		t.Error("400 page should name the missing header")
	}
}

func TestRouterRecordsRejectedStatus(t *testing.T) {
	cfg := config.Defaults()
	cfg.Compression.Enabled = false
	cfg.Connections.Timeout = 2 * time.Second
	var out bytes.Buffer
	log := NewLogger(&out, &bytes.Buffer{}, "info", "text")
	inj := &Injector{log: log, script: []byte("<script>/*lr*/</script>"), suppressWarn: true}
	files := NewFileServer(cfg, log, inj)
	broadcast := NewBroadcaster(log, false, true, 0, nil)
	folder := t.TempDir()
	rt := NewRouter(cfg, log, files, nil, broadcast, NewAdmission(10), nil,
		func() []string { return []string{folder} },
		func() bool { return false })

	raw := roundTrip(t, rt, "GET /../etc/passwd HTTP/1.1\r\nHost: localhost\r\n\r\n")
	status, _, _ := splitResponse(t, raw)
	if !strings.HasPrefix(status, "HTTP/1.1 403") {
		t.Errorf("status = %q, want 403", status)
	}
	if !strings.Contains(out.String(), " 403 ") {
		t.Errorf("request log should record 403, got %q", out.String())
	}
}

func TestRouterWebSocketUpgradeAndBroadcast(t *testing.T) {
	rt := newTestRouter(t, []string{t.TempDir()}, nil)

	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	done := make(chan struct{})
	go func() {
		rt.HandleConnection(serverEnd)
		close(done)
	}()

	upgrade := "GET / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := clientEnd.Write([]byte(upgrade)); err != nil {
		t.Fatal(err)
	}

	reader := bufio.NewReader(clientEnd)
	clientEnd.SetReadDeadline(time.Now().Add(2 * time.Second))
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(statusLine, "HTTP/1.1 101") {
		t.Fatalf("handshake status = %q", statusLine)
	}
	// Drain handshake headers
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
	}

	if !waitFor(t, time.Second, func() bool { return rt.broadcast.ClientCount() == 1 }) {
		t.Fatal("client never registered with broadcaster")
	}

	rt.broadcast.Broadcast(MessageReload)
	clientEnd.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := ReadFrame(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(frame.Payload) != MessageReload {
		t.Errorf("payload = %q", frame.Payload)
	}

	// Close handshake ends the streaming loop and deregisters
	maskedClose := maskFrame(BuildCloseFrame(), [4]byte{1, 2, 3, 4})
	if _, err := clientEnd.Write(maskedClose); err != nil {
		t.Fatal(err)
	}
	clientEnd.SetReadDeadline(time.Now().Add(2 * time.Second))
	if reply, err := ReadFrame(reader); err == nil && reply.Opcode != opcodeClose {
		t.Errorf("reply opcode = %#x, want close", reply.Opcode)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("streaming loop did not exit after close frame")
	}
	if rt.broadcast.ClientCount() != 0 {
		t.Errorf("client still registered after close")
	}
}

func TestRouterFrameSplitAcrossPollDeadline(t *testing.T) {
	rt := newTestRouter(t, []string{t.TempDir()}, nil)

	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()
	done := make(chan struct{})
	go func() {
		rt.HandleConnection(serverEnd)
		close(done)
	}()

	upgrade := "GET / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := clientEnd.Write([]byte(upgrade)); err != nil {
		t.Fatal(err)
	}

	reader := bufio.NewReader(clientEnd)
	clientEnd.SetReadDeadline(time.Now().Add(2 * time.Second))
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(statusLine, "HTTP/1.1 101") {
		t.Fatalf("handshake status = %q", statusLine)
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
	}

	// Deliver a ping one byte at a time with a gap longer than the
	// stop-check interval; the stream must not desync.
	ping := maskFrame([]byte{0x80 | opcodePing, 0x02, 'h', 'i'}, [4]byte{9, 8, 7, 6})
	if _, err := clientEnd.Write(ping[:1]); err != nil {
		t.Fatal(err)
	}
	time.Sleep(wsPollInterval + 300*time.Millisecond)
	if _, err := clientEnd.Write(ping[1:]); err != nil {
		t.Fatal(err)
	}

	clientEnd.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := ReadFrame(reader)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Opcode != opcodePong {
		t.Errorf("reply opcode = %#x, want pong", reply.Opcode)
	}
	if string(reply.Payload) != "hi" {
		t.Errorf("pong payload = %q, want %q", reply.Payload, "hi")
	}

	maskedClose := maskFrame(BuildCloseFrame(), [4]byte{1, 2, 3, 4})
	if _, err := clientEnd.Write(maskedClose); err != nil {
		t.Fatal(err)
	}
	clientEnd.SetReadDeadline(time.Now().Add(2 * time.Second))
	ReadFrame(reader)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("streaming loop did not exit after close frame")
	}
}
