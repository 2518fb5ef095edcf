package peer

import (
	"fmt"

	"github.com/rudransh-shrivastava/peer-drop/internal/transport"
)

type ConnStatus int

const (
	ConnConnecting ConnStatus = iota + 1
	ConnOpen
	ConnClosed
)

func (s ConnStatus) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Record is one known remote peer. token identifies the attempt or inbound
// handle that owns the record, so late events from a replaced handle are
// recognised and ignored.
type Record struct {
	RemoteID string
	Status   ConnStatus
	conn     transport.Conn
	token    uint64
}

// Registry tracks connections by remote id. It is owned by the session loop
// and not safe for concurrent use.
type Registry struct {
	records  map[string]*Record
	order    []string
	selected string
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

func (r *Registry) Get(remoteID string) (*Record, bool) {
	rec, ok := r.records[remoteID]
	return rec, ok
}

// Connecting records an outbound attempt. It is not listed until it opens.
func (r *Registry) Connecting(remoteID string, token uint64) *Record {
	rec := &Record{RemoteID: remoteID, Status: ConnConnecting, token: token}
	r.records[remoteID] = rec
	return rec
}

// Open marks remoteID open on conn, replacing whatever was there. A record
// that was already listed keeps its position. The replaced handle, if any
// and different from conn, is returned for the caller to close.
func (r *Registry) Open(remoteID string, conn transport.Conn, token uint64) transport.Conn {
	var replaced transport.Conn
	prev, ok := r.records[remoteID]
	if ok && prev.conn != nil && prev.conn != conn {
		replaced = prev.conn
	}
	listed := ok && prev.Status == ConnOpen

	r.records[remoteID] = &Record{RemoteID: remoteID, Status: ConnOpen, conn: conn, token: token}
	if !listed {
		r.order = append(r.order, remoteID)
	}
	return replaced
}

// Remove drops remoteID, unlisting it and clearing the selection if needed.
func (r *Registry) Remove(remoteID string) {
	rec, ok := r.records[remoteID]
	if !ok {
		return
	}
	rec.Status = ConnClosed
	delete(r.records, remoteID)

	for i, id := range r.order {
		if id == remoteID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.selected == remoteID {
		r.selected = ""
	}
}

func (r *Registry) Select(remoteID string) error {
	rec, ok := r.records[remoteID]
	if !ok {
		return fmt.Errorf("%w: unknown connection %q", ErrNotSelectable, remoteID)
	}
	if rec.Status != ConnOpen {
		return fmt.Errorf("%w: connection %q is %s", ErrNotSelectable, remoteID, rec.Status)
	}
	r.selected = remoteID
	return nil
}

func (r *Registry) Selected() string {
	return r.selected
}

// Connections lists open remote ids in the order they first opened.
func (r *Registry) Connections() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	return len(r.records)
}

// Clear empties the registry and returns every handle it held.
func (r *Registry) Clear() []transport.Conn {
	var conns []transport.Conn
	for _, rec := range r.records {
		if rec.conn != nil {
			conns = append(conns, rec.conn)
		}
	}
	r.records = make(map[string]*Record)
	r.order = nil
	r.selected = ""
	return conns
}
