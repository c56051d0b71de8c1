// Package dispatcher carries routing operations between peers: it frames
// the five inter-node message kinds the ring core defines, transports them
// over net/rpc+gob, and runs inbound operations against the local node on
// a fixed-size worker pool. It is the only package in this module that
// performs network I/O on behalf of the ring core.
package dispatcher

import (
	"context"

	"chordring/internal/domain"
	"chordring/internal/ring"
)

// LocalNode is the minimal surface an inbound Operation needs to resume
// execution at the destination. Operations received off the wire never
// carry a reference to the local node directly — the dispatcher supplies
// it as an argument at run time, so a message decoded on one node behaves
// identically to one decoded on any other.
type LocalNode interface {
	Self() domain.NodeInfo
	HandleLookup(ctx context.Context, op *Lookup)
	HandleLookupResult(key ring.ID, responder domain.NodeInfo)
	HandleRequestPredecessor(ctx context.Context, origin domain.NodeInfo)
	HandlePredecessorResponse(responder domain.NodeInfo, predecessor *domain.NodeInfo)
	HandleNotify(origin domain.NodeInfo)
}

// Operation is a uniform value carrying an origin and enough state to
// resume at the destination node.
type Operation interface {
	Origin() domain.NodeInfo
	Run(ctx context.Context, local LocalNode)
}

// Lookup is forwarded hop by hop toward the node responsible for Key,
// accumulating LastNode/TimeToLive/ReachedDestination as it travels.
type Lookup struct {
	OriginInfo          domain.NodeInfo
	Key                 ring.ID
	LastNode            domain.NodeInfo
	TimeToLive          int
	ReachedDestination  bool
	TraceID             string
}

func (m *Lookup) Origin() domain.NodeInfo { return m.OriginInfo }
func (m *Lookup) Run(ctx context.Context, local LocalNode) {
	local.HandleLookup(ctx, m)
}

// LookupResult is sent by the node that resolved a Lookup back to its
// origin, which completes the matching in-flight lookup handle.
type LookupResult struct {
	OriginInfo domain.NodeInfo
	Responder  domain.NodeInfo
	Key        ring.ID
}

func (m *LookupResult) Origin() domain.NodeInfo { return m.OriginInfo }
func (m *LookupResult) Run(ctx context.Context, local LocalNode) {
	local.HandleLookupResult(m.Key, m.Responder)
}

// RequestPredecessor asks its recipient to report its predecessor, as part
// of stabilize_successor.
type RequestPredecessor struct {
	OriginInfo domain.NodeInfo
}

func (m *RequestPredecessor) Origin() domain.NodeInfo { return m.OriginInfo }
func (m *RequestPredecessor) Run(ctx context.Context, local LocalNode) {
	local.HandleRequestPredecessor(ctx, m.OriginInfo)
}

// PredecessorResponse answers a RequestPredecessor; Predecessor is nil
// when the responder has none. Responder identifies who is answering, so
// the original requester can match the reply to the pending probe it sent
// — OriginInfo alone would only name the requester itself.
type PredecessorResponse struct {
	OriginInfo  domain.NodeInfo
	Responder   domain.NodeInfo
	Predecessor *domain.NodeInfo
}

func (m *PredecessorResponse) Origin() domain.NodeInfo { return m.OriginInfo }
func (m *PredecessorResponse) Run(ctx context.Context, local LocalNode) {
	local.HandlePredecessorResponse(m.Responder, m.Predecessor)
}

// Notify tells its recipient "I believe I am your predecessor"; the
// recipient runs update_predecessor against it.
type Notify struct {
	OriginInfo domain.NodeInfo
}

func (m *Notify) Origin() domain.NodeInfo { return m.OriginInfo }
func (m *Notify) Run(ctx context.Context, local LocalNode) {
	local.HandleNotify(m.OriginInfo)
}
