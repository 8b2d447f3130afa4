// Package registry holds the authoritative mapping from user id to the one
// live connection currently representing that user.
package registry

import (
	"sync"

	"github.com/driftline/chat-relay/pkg/protocol"
)

// Conn is the handle the registry keeps per user. Implementations must be
// safe for writes from multiple goroutines.
type Conn interface {
	WriteFrame(f *protocol.Frame) error
	Close() error
}

type Registry struct {
	mut_connections sync.RWMutex
	connections     map[string]Conn
}

func CreateRegistry() *Registry {
	return &Registry{
		mut_connections: sync.RWMutex{},
		connections:     make(map[string]Conn),
	}
}

// Bind inserts or replaces the entry for userId. A previous entry for the
// same user is overwritten but not closed: the last successful handshake
// wins, and the superseded connection is left to die on its own transport
// close.
func (r *Registry) Bind(userId string, conn Conn) {
	r.mut_connections.Lock()
	defer r.mut_connections.Unlock()

	r.connections[userId] = conn
}

// Lookup resolves a forwarding target. A missing entry is a normal outcome
// meaning the user is not connected to this process right now.
func (r *Registry) Lookup(userId string) (Conn, bool) {
	r.mut_connections.RLock()
	defer r.mut_connections.RUnlock()

	conn, has := r.connections[userId]
	return conn, has
}

// Unbind removes whichever entry currently holds conn as its value. The
// close event carries the connection, not the user id, so the map is
// scanned by value. A connection that was never bound, or that has already
// been superseded by a later Bind for the same user, is a no-op; the
// superseding entry survives.
func (r *Registry) Unbind(conn Conn) (userId string, found bool) {
	r.mut_connections.Lock()
	defer r.mut_connections.Unlock()

	for id, c := range r.connections {
		if c == conn {
			delete(r.connections, id)
			return id, true
		}
	}
	return "", false
}

// Len reports the number of bound users.
func (r *Registry) Len() int {
	r.mut_connections.RLock()
	defer r.mut_connections.RUnlock()

	return len(r.connections)
}
