package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sambeau/sorrel/config"
)

const (
	bindRetries     = 3
	bindBackoff     = 100 * time.Millisecond
	workerJoinLimit = 2 * time.Second
)

// Status is the externally visible server state.
type Status struct {
	State string // "stopped", "running", "error"
	Port  int
	Err   string
}

// Server owns the listener, the accept loop and every collaborator
// behind it. One Server serves one set of folders until stopped.
type Server struct {
	cfg *config.Config
	log *Logger

	listener  net.Listener
	router    *Router
	watcher   *Watcher
	broadcast *Broadcaster
	admission *Admission
	devlog    *DevLog

	foldersMu sync.RWMutex
	folders   []string

	stopFlag atomic.Bool
	stopOnce sync.Once
	workers  chan struct{}
	wg       sync.WaitGroup

	statusMu sync.RWMutex
	status   Status
}

func New(cfg *config.Config, log *Logger) *Server {
	return &Server{
		cfg:     cfg,
		log:     log,
		workers: make(chan struct{}, cfg.Connections.MaxWorkers),
		status:  Status{State: "stopped"},
	}
}

// Start binds the listener, wires the collaborators and launches the
// accept loop. It returns once the server is accepting.
func (s *Server) Start(folders []string) error {
	if s.IsRunning() {
		return fmt.Errorf("server already running on port %d", s.Port())
	}

	ln, err := s.bind()
	if err != nil {
		s.setStatus(Status{State: "error", Err: err.Error()})
		return err
	}
	s.listener = ln
	port := ln.Addr().(*net.TCPAddr).Port

	s.foldersMu.Lock()
	s.folders = append([]string(nil), folders...)
	s.foldersMu.Unlock()

	lr := s.cfg.LiveReload
	s.broadcast = NewBroadcaster(s.log, lr.FullReload, lr.CSSInjection, lr.Delay(), lr.IgnoreExts)
	s.admission = NewAdmission(s.cfg.Connections.MaxConcurrent)

	injector := NewInjector(s.log, s.cfg.Server.Host, port, lr.SuppressTagWarning)
	if !lr.Enabled {
		injector = &Injector{log: s.log, suppressWarn: true}
	}
	files := NewFileServer(s.cfg, s.log, injector)

	var proxy *Proxy
	if s.cfg.Proxy.Enabled {
		proxy = NewProxy(s.cfg.Proxy, s.log)
	}

	if s.cfg.Dev.LogDatabase != "" {
		devlog, err := NewDevLog(s.cfg.BaseDir, s.cfg.Dev)
		if err != nil {
			s.log.Warnf("dev log disabled: %v", err)
		} else {
			s.devlog = devlog
		}
	}

	s.router = NewRouter(s.cfg, s.log, files, proxy, s.broadcast, s.admission, s.devlog,
		s.Folders, s.stopFlag.Load)

	// A watcher that fails to start means live reload silently does
	// not fire; static serving still works
	if lr.Enabled {
		s.watcher = NewWatcher(s.cfg.Watcher, s.cfg.Serving.AllowedTypes, s.log, s.OnFileChanged)
		if err := s.watcher.Start(folders); err != nil {
			s.log.Warnf("file watcher failed to start, live reload disabled: %v", err)
			s.watcher = nil
		}
	}

	s.setStatus(Status{State: "running", Port: port})
	s.log.Infof("serving %d folder(s) on http://%s:%d", len(folders), s.cfg.Server.Host, port)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// bind tries the configured port with backoff, then falls back to an
// ephemeral port. Port 0 goes straight to the ephemeral range.
func (s *Server) bind() (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	if s.cfg.Server.Port != 0 {
		backoff := bindBackoff
		for attempt := 0; attempt < bindRetries; attempt++ {
			ln, err := net.Listen("tcp", addr)
			if err == nil {
				return ln, nil
			}
			s.log.Warnf("port %d unavailable (attempt %d/%d): %v", s.cfg.Server.Port, attempt+1, bindRetries, err)
			time.Sleep(backoff)
			backoff *= 2
		}
		s.log.Warnf("falling back to an ephemeral port")
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:0", s.cfg.Server.Host))
	if err != nil {
		return nil, fmt.Errorf("no port available on %s: %w", s.cfg.Server.Host, err)
	}
	return ln, nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopFlag.Load() {
				return
			}
			s.log.Errorf("accept: %v", err)
			continue
		}
		if s.stopFlag.Load() {
			conn.Close()
			return
		}

		addr := ""
		if ra := conn.RemoteAddr(); ra != nil {
			addr = ra.String()
		}
		if !s.admission.TryAdmit(conn, addr) {
			s.refuse(conn)
			continue
		}

		// Bounded worker pool: block the accept loop until a slot frees
		s.workers <- struct{}{}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() { <-s.workers }()
			s.router.HandleConnection(c)
		}(conn)
	}
}

// refuse sends a 503 with Retry-After and closes without handing the
// connection to a worker.
func (s *Server) refuse(conn net.Conn) {
	retryAfter := s.cfg.Connections.RetryAfter
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	NewResponse(503, headerConfigFrom(s.cfg)).
		SetHeader("Content-Type", "text/html").
		SetHeader("Retry-After", fmt.Sprintf("%d", retryAfter)).
		SetBody(UnavailablePage(retryAfter)).
		Send(conn)
	conn.Close()
}

// Stop tears the server down in order: stop flag, watcher, websocket
// clients, listener, then a bounded wait for the workers. Safe to call
// more than once; teardown runs a single time.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.stopFlag.Store(true)

		if s.watcher != nil {
			s.watcher.Stop()
		}
		if s.broadcast != nil {
			s.broadcast.CloseAll()
		}
		if s.listener != nil {
			s.listener.Close()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(workerJoinLimit):
			s.log.Warnf("some connections did not finish within %s", workerJoinLimit)
		}

		if s.devlog != nil {
			s.devlog.Close()
		}
		s.setStatus(Status{State: "stopped"})
		s.log.Infof("server stopped")
	})
}

func (s *Server) IsRunning() bool {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status.State == "running"
}

func (s *Server) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Server) Port() int {
	return s.Status().Port
}

func (s *Server) setStatus(st Status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Folders returns a snapshot of the served folder list.
func (s *Server) Folders() []string {
	s.foldersMu.RLock()
	defer s.foldersMu.RUnlock()
	return append([]string(nil), s.folders...)
}

// AddFolder appends a folder to the served set while running.
func (s *Server) AddFolder(folder string) {
	s.foldersMu.Lock()
	for _, f := range s.folders {
		if f == folder {
			s.foldersMu.Unlock()
			return
		}
	}
	s.folders = append(s.folders, folder)
	s.foldersMu.Unlock()
}

// OnFileChanged feeds one change into the reload pipeline. Exposed so
// external tooling can force a reload without touching the file system.
func (s *Server) OnFileChanged(path string) {
	if s.broadcast != nil {
		s.broadcast.OnFileChanged(path)
	}
	if s.devlog != nil {
		s.devlog.LogChange(path)
	}
}

// IsFileAllowed reports whether a path's extension is in the inline
// render allow-list.
func (s *Server) IsFileAllowed(path string) bool {
	ext := extOf(path)
	for _, allowed := range s.cfg.Serving.AllowedTypes {
		if ext == allowed {
			return true
		}
	}
	return false
}
