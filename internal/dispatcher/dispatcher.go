package dispatcher

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"

	"chordring/internal/ctxutil"
	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/telemetry/lookuptrace"
)

const rpcServiceName = "Dispatcher"

// Config bounds the dispatcher's resource usage: the inbound worker pool
// size, dial/send timeouts, and idle-connection eviction for the peer
// pool.
type Config struct {
	WorkerPoolSize int
	QueueSize      int
	DialTimeout    time.Duration
	SendTimeout    time.Duration
	IdleTTL        time.Duration
}

// DefaultConfig returns sane reference values: a 10-worker pool and
// generous but bounded network timeouts.
func DefaultConfig() Config {
	return Config{
		WorkerPoolSize: 10,
		QueueSize:      64,
		DialTimeout:    2 * time.Second,
		SendTimeout:    2 * time.Second,
		IdleTTL:        60 * time.Second,
	}
}

// Dispatcher is the ring core's only network-I/O component: it accepts
// inbound operations from peers and runs them against the local node on a
// fixed-size worker pool, and sends outbound operations to named peers
// over pooled net/rpc connections.
type Dispatcher struct {
	logger logger.Logger
	self   domain.NodeInfo
	cfg    Config

	local   LocalNode
	localMu sync.RWMutex

	peers *peerPool

	listener  net.Listener
	rpcServer *rpc.Server

	workQueue chan work
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

type work struct {
	ctx context.Context
	op  Operation
}

// Option customizes a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithConfig overrides the default pool sizes and timeouts.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) { d.cfg = cfg }
}

// New builds a Dispatcher for self. SetLocal must be called before Serve
// starts delivering inbound operations; Send works immediately.
func New(self domain.NodeInfo, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		self:   self,
		cfg:    DefaultConfig(),
		logger: &logger.NopLogger{},
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.peers = newPeerPool(d.cfg.DialTimeout, d.cfg.IdleTTL, d.logger.Named("peerpool"))
	d.workQueue = make(chan work, d.cfg.QueueSize)
	return d
}

// SetLocal installs the local node that inbound operations run against.
// Operations that a worker picks up before SetLocal is called are dropped
// with a warning, not held until a local node arrives.
func (d *Dispatcher) SetLocal(local LocalNode) {
	d.localMu.Lock()
	d.local = local
	d.localMu.Unlock()
}

func (d *Dispatcher) getLocal() LocalNode {
	d.localMu.RLock()
	defer d.localMu.RUnlock()
	return d.local
}

// Serve starts accepting inbound connections on lis and launches the
// worker pool. It returns once the listener is closed.
func (d *Dispatcher) Serve(lis net.Listener) error {
	d.listener = lis
	if d.rpcServer == nil {
		d.rpcServer = rpc.NewServer()
	}
	if err := d.rpcServer.RegisterName(rpcServiceName, &rpcReceiver{d: d}); err != nil {
		return fmt.Errorf("dispatcher: register rpc receiver: %w", err)
	}

	for i := 0; i < d.cfg.WorkerPoolSize; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-d.stopCh:
				return nil
			default:
				return err
			}
		}
		go d.rpcServer.ServeConn(conn)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case w := <-d.workQueue:
			local := d.getLocal()
			if local == nil {
				d.logger.Warn("dispatcher: dropping operation, local node not yet attached")
				continue
			}
			w.op.Run(w.ctx, local)
		}
	}
}

// Send delivers op to target over a pooled connection, blocking up to the
// configured send timeout. Transport failures are returned to the caller,
// which is always responsible for calling InformFailure on the routing
// table — the dispatcher itself never touches routing state.
func (d *Dispatcher) Send(target string, op Operation) error {
	env, err := envelopeFor(op)
	if err != nil {
		return err
	}
	client, err := d.peers.getClient(target)
	if err != nil {
		return err
	}

	var ack Ack
	call := client.Go(rpcServiceName+".Handle", env, &ack, make(chan *rpc.Call, 1))
	select {
	case res := <-call.Done:
		if res.Error != nil {
			d.peers.invalidate(target)
			return fmt.Errorf("dispatcher: send to %s: %w", target, res.Error)
		}
		if !ack.OK {
			return fmt.Errorf("dispatcher: %s rejected operation (worker queue full)", target)
		}
		return nil
	case <-time.After(d.cfg.SendTimeout):
		d.peers.invalidate(target)
		return fmt.Errorf("dispatcher: send to %s timed out after %s", target, d.cfg.SendTimeout)
	}
}

// Dial returns a pooled net/rpc client for addr, reusing the same
// connection pool Send uses. It lets other local RPC services (the backup
// front end) share the dispatcher's peer connections instead of
// maintaining their own.
func (d *Dispatcher) Dial(addr string) (*rpc.Client, error) {
	return d.peers.getClient(addr)
}

// RegisterService exposes an additional RPC receiver under name on the
// same listener Serve runs, so collaborators like the backup front end
// can register their own methods without opening a second port.
func (d *Dispatcher) RegisterService(name string, receiver any) error {
	if d.rpcServer == nil {
		d.rpcServer = rpc.NewServer()
	}
	return d.rpcServer.RegisterName(name, receiver)
}

// Close stops accepting connections, drains the worker pool, and closes
// every pooled peer connection.
func (d *Dispatcher) Close() error {
	close(d.stopCh)
	var err error
	if d.listener != nil {
		err = d.listener.Close()
	}
	d.wg.Wait()
	d.peers.Close()
	return err
}

// rpcReceiver is the type registered with net/rpc; its only method is the
// single multiplexed entry point: Dispatcher.Handle.
type rpcReceiver struct {
	d *Dispatcher
}

// Handle decodes the envelope and enqueues the operation for a worker.
// It never runs the operation inline: net/rpc serializes requests on a
// single connection, and a slow operation must not stall that peer's
// other in-flight calls.
func (r *rpcReceiver) Handle(env *Envelope, ack *Ack) error {
	op, err := env.Operation()
	if err != nil {
		return err
	}

	hop := 0
	traceID := ""
	if env.Kind == kindLookup && env.Lookup != nil {
		hop = env.Lookup.TimeToLive
		traceID = env.Lookup.TraceID
	}
	ctx := ctxutil.WithTraceID(context.Background(), traceID)
	ctx, span := lookuptrace.StartHopSpan(ctx, env.Kind, hop)
	defer span.End()

	select {
	case r.d.workQueue <- work{ctx: ctx, op: op}:
		ack.OK = true
	default:
		r.d.logger.Warn("dispatcher: worker queue full, rejecting operation", logger.F("kind", env.Kind))
		ack.OK = false
	}
	return nil
}
