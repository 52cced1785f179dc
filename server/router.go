package server

import (
	"bufio"
	"errors"
	"net"
	"time"

	"github.com/sambeau/sorrel/config"
)

// wsPollInterval is how often the streaming loop wakes up to check
// the server stop flag while blocked on a client read.
const wsPollInterval = 1 * time.Second

// Router drives one connection through its lifecycle: read and parse
// the request, dispatch on upgrade/method, and always release the
// admission slot and close the socket on the way out.
type Router struct {
	cfg       *config.Config
	log       *Logger
	files     *FileServer
	proxy     *Proxy
	broadcast *Broadcaster
	admission *Admission
	devlog    *DevLog
	headerCfg responseHeaderConfig

	folders  func() []string
	stopping func() bool
}

func NewRouter(cfg *config.Config, log *Logger, files *FileServer, proxy *Proxy, broadcast *Broadcaster, admission *Admission, devlog *DevLog, folders func() []string, stopping func() bool) *Router {
	return &Router{
		cfg:       cfg,
		log:       log,
		files:     files,
		proxy:     proxy,
		broadcast: broadcast,
		admission: admission,
		devlog:    devlog,
		headerCfg: headerConfigFrom(cfg),
		folders:   folders,
		stopping:  stopping,
	}
}

// HandleConnection owns conn from admission to close.
func (rt *Router) HandleConnection(conn net.Conn) {
	defer rt.admission.Release(conn)
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			page, errorID := InternalErrorPage()
			rt.log.Errorf("panic handling connection (error ID %s): %v", errorID, r)
			NewResponse(500, rt.headerCfg).
				SetHeader("Content-Type", "text/html").
				SetBody(page).
				Send(conn)
		}
	}()

	conn.SetDeadline(time.Now().Add(rt.cfg.Connections.Timeout))
	reader := bufio.NewReader(conn)

	req, err := ReadRequest(reader)
	if err != nil {
		if errors.Is(err, errMalformedRequest) {
			rt.sendError(conn, 400, BadRequestPage(""))
		}
		// EOF or timeout before a full request: close silently
		return
	}

	start := time.Now()

	if req.IsWebSocketUpgrade() {
		rt.handleUpgrade(conn, reader, req)
		return
	}

	if rt.proxy != nil && rt.proxy.Matches(req.Path) {
		status := rt.proxy.Forward(conn, req, rt.headerCfg)
		rt.record(req, status, start, conn)
		return
	}

	switch req.Method {
	case "GET":
		rt.handleGet(conn, req, start, false)
	case "HEAD":
		rt.handleGet(conn, req, start, true)
	case "OPTIONS":
		resp := NewResponse(204, rt.headerCfg)
		resp.AddCORSHeaders()
		resp.Send(conn)
		rt.record(req, 204, start, conn)
	default:
		NewResponse(405, rt.headerCfg).
			SetHeader("Allow", "GET, HEAD, OPTIONS").
			SetHeader("Content-Type", "text/html").
			SetBody(ErrorPage(405, "Method Not Allowed", "", "")).
			Send(conn)
		rt.record(req, 405, start, conn)
	}
}

func (rt *Router) handleGet(conn net.Conn, req *Request, start time.Time, headOnly bool) {
	folders := rt.folders()
	if status, handled := rt.files.Serve(conn, req.Path, folders, headOnly); handled {
		rt.record(req, status, start, conn)
		return
	}

	resp := NewResponse(404, rt.headerCfg).
		SetHeader("Content-Type", "text/html").
		SetBody(NotFoundPage(req.Path, folders))
	if headOnly {
		resp.SendHeadersOnly(conn)
	} else {
		resp.Send(conn)
	}
	rt.record(req, 404, start, conn)
}

// handleUpgrade performs the opening handshake and runs the streaming
// loop until the peer closes or the server stops. The connection holds
// its admission slot for its whole lifetime.
func (rt *Router) handleUpgrade(conn net.Conn, reader *bufio.Reader, req *Request) {
	handshake, ok := HandshakeResponse(req)
	if !ok {
		rt.sendError(conn, 400, BadRequestPage("WebSocket upgrade is missing Sec-WebSocket-Key"))
		return
	}
	// Lift the request deadline; the loop sets its own read deadlines
	conn.SetDeadline(time.Time{})
	if _, err := conn.Write([]byte(handshake)); err != nil {
		return
	}

	rt.broadcast.AddClient(conn)
	defer rt.broadcast.RemoveClient(conn)
	rt.log.Debugf("websocket client connected (%d active)", rt.broadcast.ClientCount())

	for {
		if rt.stopping() {
			rt.writeFrame(conn, BuildCloseFrame())
			return
		}
		// Peek so a poll timeout never discards bytes mid-frame; any
		// partial header stays buffered for the next pass.
		conn.SetReadDeadline(time.Now().Add(wsPollInterval))
		if _, err := reader.Peek(2); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(rt.cfg.Connections.Timeout))
		frame, err := ReadFrame(reader)
		if err != nil {
			return
		}
		switch frame.Opcode {
		case opcodePing:
			rt.writeFrame(conn, BuildPongFrame(frame.Payload))
		case opcodeClose:
			rt.writeFrame(conn, BuildCloseFrame())
			return
		case opcodeText:
			// Client text frames carry no protocol meaning
			rt.log.Debugf("websocket message from client: %q", frame.Payload)
		}
	}
}

// writeFrame writes a control frame with a short deadline so a stalled
// peer cannot wedge the streaming loop on its way out.
func (rt *Router) writeFrame(conn net.Conn, frame []byte) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.Write(frame)
}

func (rt *Router) sendError(conn net.Conn, status int, page []byte) {
	NewResponse(status, rt.headerCfg).
		SetHeader("Content-Type", "text/html").
		SetBody(page).
		Send(conn)
}

func (rt *Router) record(req *Request, status int, start time.Time, conn net.Conn) {
	clientIP := ""
	if addr := conn.RemoteAddr(); addr != nil {
		clientIP = addr.String()
	}
	rt.log.LogRequest(req.Method, req.Path, status, time.Since(start), clientIP)
	if rt.devlog != nil {
		rt.devlog.LogRequest(req.Method, req.Path, status, time.Since(start), clientIP)
	}
}
