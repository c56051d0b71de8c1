package dispatcher

import "fmt"

// Envelope is the net/rpc argument type every Dispatcher.Handle call
// carries: a tagged union over the five message kinds, gob-encoded as a
// single struct so the wire format never needs gob.Register for an
// interface type.
type Envelope struct {
	Kind                 string
	Lookup               *Lookup
	LookupResult         *LookupResult
	RequestPredecessor   *RequestPredecessor
	PredecessorResponse  *PredecessorResponse
	Notify               *Notify
}

// Ack is the net/rpc reply type. OK is false when the dispatcher's worker
// queue was full and the operation was dropped; the caller treats that the
// same as a transport failure (inform_failure on the target).
type Ack struct {
	OK bool
}

const (
	kindLookup               = "lookup"
	kindLookupResult         = "lookup_result"
	kindRequestPredecessor   = "request_predecessor"
	kindPredecessorResponse  = "predecessor_response"
	kindNotify               = "notify"
)

// envelopeFor wraps op for transport.
func envelopeFor(op Operation) (*Envelope, error) {
	switch m := op.(type) {
	case *Lookup:
		return &Envelope{Kind: kindLookup, Lookup: m}, nil
	case *LookupResult:
		return &Envelope{Kind: kindLookupResult, LookupResult: m}, nil
	case *RequestPredecessor:
		return &Envelope{Kind: kindRequestPredecessor, RequestPredecessor: m}, nil
	case *PredecessorResponse:
		return &Envelope{Kind: kindPredecessorResponse, PredecessorResponse: m}, nil
	case *Notify:
		return &Envelope{Kind: kindNotify, Notify: m}, nil
	default:
		return nil, fmt.Errorf("dispatcher: unknown operation type %T", op)
	}
}

// Operation unwraps the envelope back into its concrete Operation.
func (e *Envelope) Operation() (Operation, error) {
	switch e.Kind {
	case kindLookup:
		if e.Lookup == nil {
			break
		}
		return e.Lookup, nil
	case kindLookupResult:
		if e.LookupResult == nil {
			break
		}
		return e.LookupResult, nil
	case kindRequestPredecessor:
		if e.RequestPredecessor == nil {
			break
		}
		return e.RequestPredecessor, nil
	case kindPredecessorResponse:
		if e.PredecessorResponse == nil {
			break
		}
		return e.PredecessorResponse, nil
	case kindNotify:
		if e.Notify == nil {
			break
		}
		return e.Notify, nil
	}
	return nil, fmt.Errorf("dispatcher: malformed envelope of kind %q", e.Kind)
}
