package interlink

import (
	"sync"

	"bekkernel/errs"
	"bekkernel/hashtable"
)

// Server is a process-wide advertised address with a FIFO of connections
// awaiting accept() (§4.13).
type Server struct {
	mu      sync.Mutex
	address string
	pending []*Connection
}

// addressMapBuckets is a small fixed bucket count: the number of
// concurrently advertised servers in one kernel is expected to be tiny.
const addressMapBuckets = 16

// AddressMap is the process-wide Interlink server map singleton (§5:
// "Shared resources... Interlink server map"), backed by the same
// lock-free-read hash table the block-device registry uses, since server
// lookup (connect()) must be safe to call from any process without
// blocking behind a concurrent advertise()/withdraw().
type AddressMap struct {
	servers *hashtable.Table[string, *Server]
}

func NewAddressMap() *AddressMap {
	return &AddressMap{servers: hashtable.New[string, *Server](addressMapBuckets, hashtable.FNV32AString)}
}

// Advertise inserts a new Server at address iff it is free (§4.13).
func (m *AddressMap) Advertise(address string) (*Server, errs.Err_t) {
	if _, exists := m.servers.Get(address); exists {
		return nil, errs.EADDRINUSE
	}
	s := &Server{address: address}
	if !m.servers.Set(address, s) {
		return nil, errs.EADDRINUSE
	}
	return s, errs.ESUCCESS
}

// Withdraw removes address from the map (server-side close).
func (m *AddressMap) Withdraw(address string) {
	m.servers.Del(address)
}

// Connect looks up address, constructs a fresh Connection, and appends it
// to the server's pending queue, returning the client-side End (§4.13).
func (m *AddressMap) Connect(address string) (*End, errs.Err_t) {
	s, ok := m.servers.Get(address)
	if !ok {
		return nil, errs.ENOENT
	}

	conn := newConnection()
	s.mu.Lock()
	s.pending = append(s.pending, conn)
	s.mu.Unlock()

	return &End{conn: conn, isServer: false}, errs.ESUCCESS
}

// Accept pops the oldest pending connection on s and returns the
// server-side End; EAGAIN if none are pending (§4.13).
func (s *Server) Accept() (*End, errs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, errs.EAGAIN
	}
	conn := s.pending[0]
	s.pending = s.pending[1:]
	return &End{conn: conn, isServer: true}, errs.ESUCCESS
}
