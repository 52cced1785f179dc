package server

import (
	"bytes"
	"testing"
	"time"

	"github.com/sambeau/sorrel/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.Port = 0
	cfg.Watcher.Mode = "poll"
	cfg.Watcher.PollInterval = 50 * time.Millisecond
	log := NewLogger(&bytes.Buffer{}, &bytes.Buffer{}, "error", "text")
	m := NewManager(cfg, log)
	t.Cleanup(m.Stop)
	return m
}

func TestManagerStartStop(t *testing.T) {
	m := newTestManager(t)
	if m.IsRunning() {
		t.Fatal("running before Start")
	}
	if err := m.Start([]string{t.TempDir()}); err != nil {
		t.Fatal(err)
	}
	if !m.IsRunning() {
		t.Fatal("not running after Start")
	}
	if m.Status().Port == 0 {
		t.Error("no port reported")
	}

	m.Stop()
	if m.IsRunning() {
		t.Error("still running after Stop")
	}
	if got := m.Status().State; got != "stopped" {
		t.Errorf("state = %q", got)
	}
}

func TestManagerRejectsSecondStart(t *testing.T) {
	m := newTestManager(t)
	if err := m.Start([]string{t.TempDir()}); err != nil {
		t.Fatal(err)
	}
	if err := m.Start([]string{t.TempDir()}); err == nil {
		t.Error("second Start succeeded while running")
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := newTestManager(t)
	m.Stop()
	m.Stop() // never panics, state stays stopped
	if got := m.Status().State; got != "stopped" {
		t.Errorf("state = %q", got)
	}
}

func TestManagerRestartAfterStop(t *testing.T) {
	m := newTestManager(t)
	if err := m.Start([]string{t.TempDir()}); err != nil {
		t.Fatal(err)
	}
	m.Stop()
	if err := m.Start([]string{t.TempDir()}); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if !m.IsRunning() {
		t.Error("not running after restart")
	}
}

func TestManagerIsFileAllowed(t *testing.T) {
	m := newTestManager(t)
	if !m.IsFileAllowed("page.html") {
		t.Error("html rejected")
	}
	if m.IsFileAllowed("binary.exe") {
		t.Error("exe allowed")
	}
}

func TestManagerAddFolderRequiresRunningServer(t *testing.T) {
	m := newTestManager(t)
	if err := m.AddFolder(t.TempDir()); err == nil {
		t.Error("AddFolder succeeded with no server")
	}
	if err := m.Start([]string{t.TempDir()}); err != nil {
		t.Fatal(err)
	}
	if err := m.AddFolder(t.TempDir()); err != nil {
		t.Errorf("AddFolder failed while running: %v", err)
	}
}
