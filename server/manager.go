package server

import (
	"fmt"
	"sync"

	"github.com/sambeau/sorrel/config"
)

// Manager owns at most one live Server. UI entry points go through it
// rather than holding server references of their own, so "is something
// running" has a single answer process-wide.
type Manager struct {
	cfg *config.Config
	log *Logger

	mu      sync.Mutex
	current *Server
}

func NewManager(cfg *config.Config, log *Logger) *Manager {
	return &Manager{cfg: cfg, log: log}
}

// Start launches a server for the folders. Starting while one is
// already running is an error; callers stop the old one first.
func (m *Manager) Start(folders []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.IsRunning() {
		return fmt.Errorf("a server is already running on port %d", m.current.Port())
	}

	srv := New(m.cfg, m.log)
	if err := srv.Start(folders); err != nil {
		return err
	}
	m.current = srv
	return nil
}

// Stop shuts the current server down. Stopping when nothing runs is a
// no-op, and a second Stop after a successful one is too.
func (m *Manager) Stop() {
	m.mu.Lock()
	srv := m.current
	m.current = nil
	m.mu.Unlock()

	if srv != nil {
		srv.Stop()
	}
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.IsRunning()
}

// Status reports the current server state, or a stopped status when no
// server exists.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Status{State: "stopped"}
	}
	return m.current.Status()
}

// OnFileChange forwards an externally observed change to the running
// server, if any.
func (m *Manager) OnFileChange(path string) {
	m.mu.Lock()
	srv := m.current
	m.mu.Unlock()
	if srv != nil {
		srv.OnFileChanged(path)
	}
}

// IsFileAllowed answers against the manager's configuration even when
// no server is running.
func (m *Manager) IsFileAllowed(path string) bool {
	ext := extOf(path)
	for _, allowed := range m.cfg.Serving.AllowedTypes {
		if ext == allowed {
			return true
		}
	}
	return false
}

// AddFolder extends the served set of the running server.
func (m *Manager) AddFolder(folder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || !m.current.IsRunning() {
		return fmt.Errorf("no server running")
	}
	m.current.AddFolder(folder)
	return nil
}
