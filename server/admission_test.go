package server

import (
	"net"
	"testing"
	"time"
)

type fakeConn struct {
	net.Conn
	id int
}

func TestAdmissionCeiling(t *testing.T) {
	a := NewAdmission(3)

	conns := make([]*fakeConn, 4)
	for i := range conns {
		conns[i] = &fakeConn{id: i}
	}

	for i := 0; i < 3; i++ {
		if !a.TryAdmit(conns[i], "127.0.0.1:1000") {
			t.Fatalf("connection %d should be admitted", i)
		}
	}
	if a.TryAdmit(conns[3], "127.0.0.1:1001") {
		t.Error("connection over ceiling should be refused")
	}
	if got := a.ActiveCount(); got != 3 {
		t.Errorf("active = %d, want 3", got)
	}

	// Releasing one slot lets a new connection in
	a.Release(conns[0])
	if !a.TryAdmit(conns[3], "127.0.0.1:1001") {
		t.Error("admission should succeed after a release")
	}
}

func TestAdmissionReleaseIdempotent(t *testing.T) {
	a := NewAdmission(2)
	c := &fakeConn{}
	if !a.TryAdmit(c, "127.0.0.1:2000") {
		t.Fatal("admit failed")
	}

	a.Release(c)
	a.Release(c) // double release must not go negative

	if got := a.ActiveCount(); got != 0 {
		t.Errorf("active = %d after double release, want 0", got)
	}
	other := &fakeConn{id: 1}
	if !a.TryAdmit(other, "127.0.0.1:2001") {
		t.Error("admission broken after double release")
	}
}

func TestAdmissionPrunesStaleClients(t *testing.T) {
	a := NewAdmission(10)
	a.staleAfter = 10 * time.Millisecond
	a.pruneInterval = 0

	c := &fakeConn{}
	a.TryAdmit(c, "10.0.0.1:1234")
	a.Release(c)

	time.Sleep(20 * time.Millisecond)

	// Any admission after the staleness window triggers a prune pass
	c2 := &fakeConn{id: 2}
	a.TryAdmit(c2, "10.0.0.2:1234")

	stats := a.GetStats()
	if stats.UniqueClients != 1 {
		t.Errorf("unique clients = %d, want 1 (stale entry pruned)", stats.UniqueClients)
	}
}
