// Package backup is the file-backup front end the ring core's routing
// exists to serve: it hashes a caller's raw key into a ring Key, resolves
// the responsible node through the lookup engine, and either serves the
// request from local storage or forwards it over a dedicated RPC method
// so backup traffic never shares a message kind with routing traffic.
package backup

import (
	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/ring"
	"chordring/internal/routingtable"
	"chordring/internal/storage"
)

// ServiceName is the net/rpc name the Service is registered under,
// distinct from the dispatcher's own "Dispatcher" service.
const ServiceName = "Backup"

// StoreRequest/StoreReply, FetchRequest/FetchReply, and
// RemoveRequest/RemoveReply are the wire payloads Front sends when the
// resolved owner is a remote node.
type StoreRequest struct {
	RawKey string
	Value  []byte
}
type StoreReply struct{}

type FetchRequest struct {
	RawKey string
}
type FetchReply struct {
	Value []byte
}

type RemoveRequest struct {
	RawKey string
}
type RemoveReply struct{}

// Service is the net/rpc receiver every node registers on its dispatcher's
// listener. It only ever serves a request once that node is the key's
// owner; a stale forward arriving mid-stabilization is rejected with
// domain.ErrNotResponsible rather than silently accepted.
type Service struct {
	rt     *routingtable.RoutingTable
	store  storage.Storage
	space  ring.Space
	logger logger.Logger
}

// NewService builds a Service over store, using rt to verify ownership
// and space to re-derive a raw key's ring position.
func NewService(rt *routingtable.RoutingTable, store storage.Storage, space ring.Space, lgr logger.Logger) *Service {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Service{rt: rt, store: store, space: space, logger: lgr}
}

func (s *Service) checkResponsible(key ring.ID) error {
	if !s.rt.KeyBelongsToSuccessor(key) {
		return domain.ErrNotResponsible
	}
	return nil
}

func (s *Service) Store(req *StoreRequest, reply *StoreReply) error {
	key := s.space.NewIDFromString(req.RawKey)
	if err := s.checkResponsible(key); err != nil {
		return err
	}
	s.store.Put(domain.Resource{Key: key, RawKey: req.RawKey, Value: req.Value})
	return nil
}

func (s *Service) Fetch(req *FetchRequest, reply *FetchReply) error {
	key := s.space.NewIDFromString(req.RawKey)
	if err := s.checkResponsible(key); err != nil {
		return err
	}
	res, err := s.store.Get(key)
	if err != nil {
		return err
	}
	reply.Value = res.Value
	return nil
}

func (s *Service) Remove(req *RemoveRequest, reply *RemoveReply) error {
	key := s.space.NewIDFromString(req.RawKey)
	if err := s.checkResponsible(key); err != nil {
		return err
	}
	return s.store.Delete(key)
}
