// Package diag exposes read-only ring introspection over net/rpc, for the
// CLI client's "lookup" and "getrt" commands. It carries no routing or
// backup traffic of its own — it only reads state that already exists on
// the target node.
package diag

import (
	"context"

	"chordring/internal/domain"
	"chordring/internal/ring"
	"chordring/internal/routingtable"
)

// ServiceName is the net/rpc name the Service is registered under.
const ServiceName = "Diag"

// Lookuper resolves which node owns a key; *node.Node satisfies this.
type Lookuper interface {
	Lookup(ctx context.Context, key ring.ID) (domain.NodeInfo, error)
}

// RoutingTableRequest takes no arguments; it exists so net/rpc has a
// concrete type to decode.
type RoutingTableRequest struct{}

// RoutingTableReply is a point-in-time snapshot of one node's ring view.
type RoutingTableReply struct {
	Self        domain.NodeInfo
	Predecessor *domain.NodeInfo
	Successors  []*domain.NodeInfo
	Fingers     []*domain.NodeInfo
}

// LookupRequest names a raw, unhashed application key.
type LookupRequest struct {
	RawKey string
}

// LookupReply names the node the ring currently assigns RawKey to.
type LookupReply struct {
	Owner domain.NodeInfo
}

// Service is the net/rpc receiver a node registers alongside its
// dispatcher and backup services.
type Service struct {
	rt     *routingtable.RoutingTable
	space  ring.Space
	lookup Lookuper
}

// NewService builds a Service reading from rt and resolving lookups
// through lookup.
func NewService(rt *routingtable.RoutingTable, space ring.Space, lookup Lookuper) *Service {
	return &Service{rt: rt, space: space, lookup: lookup}
}

func (s *Service) RoutingTable(req *RoutingTableRequest, reply *RoutingTableReply) error {
	reply.Self = *s.rt.Self()
	reply.Predecessor = s.rt.GetPredecessor()
	reply.Successors = s.rt.SuccessorList()
	reply.Fingers = s.rt.FingerList()
	return nil
}

func (s *Service) Lookup(req *LookupRequest, reply *LookupReply) error {
	key := s.space.NewIDFromString(req.RawKey)
	owner, err := s.lookup.Lookup(context.Background(), key)
	if err != nil {
		return err
	}
	reply.Owner = owner
	return nil
}
