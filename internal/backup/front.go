package backup

import (
	"context"
	"fmt"
	"net/rpc"

	"chordring/internal/ctxutil"
	"chordring/internal/domain"
	"chordring/internal/ring"
)

// Lookuper resolves which node owns a key; *lookup.Engine satisfies this.
type Lookuper interface {
	Lookup(ctx context.Context, key ring.ID, traceID string) (domain.NodeInfo, error)
}

// Dialer returns a pooled net/rpc client for a peer address;
// *dispatcher.Dispatcher satisfies this via its Dial method.
type Dialer interface {
	Dial(addr string) (*rpc.Client, error)
}

// Front is the local entry point for backup operations: Put, Get, and
// Delete by raw key. It owns no retry policy beyond what Lookup's own
// timeout already provides.
type Front struct {
	self   domain.NodeInfo
	space  ring.Space
	lookup Lookuper
	dial   Dialer
	local  *Service
}

// NewFront builds a Front. local serves requests this node turns out to
// own itself, without a network round trip.
func NewFront(self domain.NodeInfo, space ring.Space, lookup Lookuper, dial Dialer, local *Service) *Front {
	return &Front{self: self, space: space, lookup: lookup, dial: dial, local: local}
}

func (f *Front) owner(ctx context.Context, rawKey string) (domain.NodeInfo, error) {
	key := f.space.NewIDFromString(rawKey)
	owner, err := f.lookup.Lookup(ctx, key, ctxutil.NewTraceID())
	if err != nil {
		return domain.NodeInfo{}, fmt.Errorf("backup: resolve owner for %q: %w", rawKey, err)
	}
	return owner, nil
}

// Put stores value under rawKey, routing to whichever node the ring
// currently assigns the key to.
func (f *Front) Put(ctx context.Context, rawKey string, value []byte) error {
	owner, err := f.owner(ctx, rawKey)
	if err != nil {
		return err
	}
	req := &StoreRequest{RawKey: rawKey, Value: value}
	if owner.Equal(f.self) {
		return f.local.Store(req, &StoreReply{})
	}
	client, err := f.dial.Dial(owner.Addr)
	if err != nil {
		return fmt.Errorf("backup: dial %s: %w", owner.Addr, err)
	}
	return client.Call(ServiceName+".Store", req, &StoreReply{})
}

// Get retrieves the value stored under rawKey.
func (f *Front) Get(ctx context.Context, rawKey string) ([]byte, error) {
	owner, err := f.owner(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	req := &FetchRequest{RawKey: rawKey}
	if owner.Equal(f.self) {
		var reply FetchReply
		if err := f.local.Fetch(req, &reply); err != nil {
			return nil, err
		}
		return reply.Value, nil
	}
	client, err := f.dial.Dial(owner.Addr)
	if err != nil {
		return nil, fmt.Errorf("backup: dial %s: %w", owner.Addr, err)
	}
	var reply FetchReply
	if err := client.Call(ServiceName+".Fetch", req, &reply); err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// Delete removes the value stored under rawKey.
func (f *Front) Delete(ctx context.Context, rawKey string) error {
	owner, err := f.owner(ctx, rawKey)
	if err != nil {
		return err
	}
	req := &RemoveRequest{RawKey: rawKey}
	if owner.Equal(f.self) {
		return f.local.Remove(req, &RemoveReply{})
	}
	client, err := f.dial.Dial(owner.Addr)
	if err != nil {
		return fmt.Errorf("backup: dial %s: %w", owner.Addr, err)
	}
	return client.Call(ServiceName+".Remove", req, &RemoveReply{})
}
