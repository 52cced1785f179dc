package server

import (
	"net"
	"strings"
	"sync"
	"time"
)

// Reload messages on the WebSocket side-channel.
const (
	MessageReload     = "reload"
	MessageRefreshCSS = "refresh-css"
)

// Broadcaster owns the set of live WebSocket clients and turns file
// change events into coalesced reload notifications.
type Broadcaster struct {
	log *Logger

	fullReload   bool
	cssInjection bool
	delay        time.Duration
	ignoreExts   []string
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[net.Conn]bool

	// pending coalescing state, guarded by pendingMu. A non-CSS event
	// upgrades a pending refresh-css to reload; nothing downgrades.
	pendingMu  sync.Mutex
	pending    bool
	pendingMsg string
	timer      *time.Timer
}

// NewBroadcaster creates a broadcaster. delay = 0 disables coalescing.
func NewBroadcaster(log *Logger, fullReload, cssInjection bool, delay time.Duration, ignoreExts []string) *Broadcaster {
	return &Broadcaster{
		log:          log,
		fullReload:   fullReload,
		cssInjection: cssInjection,
		delay:        delay,
		ignoreExts:   ignoreExts,
		writeTimeout: 5 * time.Second,
		clients:      make(map[net.Conn]bool),
	}
}

// AddClient registers an upgraded socket. Double-adds are impossible by
// construction (map semantics).
func (b *Broadcaster) AddClient(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[conn] = true
}

// RemoveClient deregisters a socket. Idempotent.
func (b *Broadcaster) RemoveClient(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, conn)
}

// ClientCount returns the number of live clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// OnFileChanged maps a changed path to a reload message and schedules or
// sends it depending on the configured delay.
func (b *Broadcaster) OnFileChanged(path string) {
	lower := strings.ToLower(path)
	for _, ext := range b.ignoreExts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return
		}
	}

	msg := MessageReload
	if !b.fullReload && b.cssInjection && isCSSPath(path) {
		msg = MessageRefreshCSS
	}

	if b.delay <= 0 {
		b.Broadcast(msg)
		return
	}

	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if b.pending {
		// CSS never downgrades a pending reload
		if msg == MessageReload {
			b.pendingMsg = MessageReload
		}
	} else {
		b.pending = true
		b.pendingMsg = msg
	}

	// One restartable timer; each event pushes the send out again
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.firePending)
}

// firePending sends the coalesced message and clears pending state.
func (b *Broadcaster) firePending() {
	b.pendingMu.Lock()
	if !b.pending {
		b.pendingMu.Unlock()
		return
	}
	msg := b.pendingMsg
	b.pending = false
	b.pendingMsg = ""
	b.timer = nil
	b.pendingMu.Unlock()

	b.Broadcast(msg)
}

// Broadcast sends one text frame to every current client. The client
// set is snapshotted before sending; failed clients are closed and
// removed afterwards under the same lock as add/remove.
func (b *Broadcaster) Broadcast(message string) {
	frame := BuildTextFrame(message)

	b.mu.Lock()
	snapshot := make([]net.Conn, 0, len(b.clients))
	for conn := range b.clients {
		snapshot = append(snapshot, conn)
	}
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	var dead []net.Conn
	for _, conn := range snapshot {
		conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if _, err := conn.Write(frame); err != nil {
			dead = append(dead, conn)
		}
	}

	if len(dead) > 0 {
		b.mu.Lock()
		for _, conn := range dead {
			delete(b.clients, conn)
			conn.Close()
		}
		b.mu.Unlock()
		b.log.Infof("removed %d dead websocket client(s)", len(dead))
	}

	b.log.Debugf("broadcast %q to %d client(s)", message, len(snapshot)-len(dead))
}

// CloseAll stops any pending timer and closes every client socket.
func (b *Broadcaster) CloseAll() {
	b.pendingMu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = false
	b.pendingMsg = ""
	b.pendingMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Write(BuildCloseFrame())
		conn.Close()
	}
	b.clients = make(map[net.Conn]bool)
}
