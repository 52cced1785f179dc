package server

import (
	"net"
	"sync"
	"time"
)

// Admission bounds concurrent in-flight connections. Over-capacity
// clients get an immediate 503 and never reach a worker.
type Admission struct {
	mu        sync.Mutex
	active    map[net.Conn]bool
	max       int
	requests  map[string]int // per-IP request counts, visibility only
	touched   map[string]time.Time
	lastPrune time.Time

	staleAfter    time.Duration
	pruneInterval time.Duration
}

// NewAdmission creates an admission controller with the given ceiling.
func NewAdmission(maxConcurrent int) *Admission {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Admission{
		active:        make(map[net.Conn]bool),
		max:           maxConcurrent,
		requests:      make(map[string]int),
		touched:       make(map[string]time.Time),
		lastPrune:     time.Now(),
		staleAfter:    time.Hour,
		pruneInterval: time.Minute,
	}
}

// TryAdmit registers the connection if the ceiling allows. The caller
// must send the 503 and close the socket itself on a false return.
func (a *Admission) TryAdmit(conn net.Conn, addr string) bool {
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if now.Sub(a.lastPrune) > a.pruneInterval {
		a.pruneLocked(now)
		a.lastPrune = now
	}

	if len(a.active) >= a.max {
		return false
	}

	a.active[conn] = true
	ip := addr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		ip = host
	}
	a.requests[ip]++
	a.touched[ip] = now
	return true
}

// Release removes an admitted connection. Safe to call more than once
// per connection; only the first call decrements.
func (a *Admission) Release(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, conn)
}

// ActiveCount returns the number of admitted connections.
func (a *Admission) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

// pruneLocked drops per-client bookkeeping older than the staleness
// window. Caller holds the lock.
func (a *Admission) pruneLocked(now time.Time) {
	for ip, last := range a.touched {
		if now.Sub(last) > a.staleAfter {
			delete(a.touched, ip)
			delete(a.requests, ip)
		}
	}
}

// Stats is a point-in-time admission snapshot.
type Stats struct {
	Active        int
	MaxConcurrent int
	UniqueClients int
}

// GetStats returns current connection statistics.
func (a *Admission) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Active:        len(a.active),
		MaxConcurrent: a.max,
		UniqueClients: len(a.requests),
	}
}
