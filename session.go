package kinetic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// state is the Session lifecycle state machine from spec.md §4.7:
//
//	New --create--> Configured --connect--> Connecting
//	Connecting --ready--> Ready
//	Connecting --timeout/error--> Failed
//	Ready --destroy--> Draining --drained--> Gone
//	Ready --fatal I/O--> Failed
//
// Transitions are one-way except New->Configured->Connecting.
type state int32

const (
	stateNew state = iota
	stateConfigured
	stateConnecting
	stateReady
	stateFailed
	stateDraining
	stateGone
)

const (
	// DefaultConnectionTimeout bounds how long Connect waits for the
	// drive's unsolicited first message.
	DefaultConnectionTimeout = 10 * time.Second
	// DefaultShutdownTimeout bounds how long Destroy waits for
	// outstanding operations to resolve before force-failing them.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultOperationTimeout is used when Execute or ExecuteAsync is
	// called with a zero timeout and Config.OperationTimeout is unset.
	DefaultOperationTimeout = 30 * time.Second
	// sweepInterval is the timeout sweeper's scan granularity (§4.7).
	sweepInterval = 200 * time.Millisecond
)

// Config configures a Session. NewSession rejects a Config without Host
// or HmacKey; Port, UseSSL and Identity are taken as given, and
// everything else has a workable default.
type Config struct {
	Host   string
	Port   int
	UseSSL bool
	// TLSConfig is used when UseSSL is true and Transport is nil. A nil
	// TLSConfig dials with tls.Config{} defaults.
	TLSConfig *tls.Config

	Identity int64
	// HmacKey is the shared secret. NewSession stores its own copy (which
	// Destroy zeroes) so the caller's slice is never retained or
	// mutated.
	HmacKey []byte

	ClusterVersion int64

	OperationTimeout  time.Duration
	ConnectionTimeout time.Duration
	ShutdownTimeout   time.Duration
	MaxOutstanding    int
	FrameLimits       FrameLimits

	// Codec defaults to DefaultCodec{}; production deployments inject
	// a codec backed by the generated protobuf schema instead.
	Codec Codec
	// Transport defaults to plain TCP or TLS per UseSSL.
	Transport Transport

	Logger  *logrus.Logger
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.OperationTimeout == 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.MaxOutstanding == 0 {
		c.MaxOutstanding = DefaultMaxOutstanding
	}
	if c.Codec == nil {
		c.Codec = DefaultCodec{}
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics
	}
	return c
}

// Session is a long-lived conversation with one drive (spec.md §3). It
// is created detached, explicitly connected, and explicitly destroyed;
// destruction is idempotent.
type Session struct {
	config Config
	codec  Codec
	log    *logrus.Entry

	metrics *Metrics
	id      uuid.UUID

	state int32 // atomic state

	sequence       int64 // atomic, monotonic, starts at 0
	connectionID   int64 // atomic, set once by the drive's first message
	clusterVersion int64 // atomic

	registry *registry
	ready    *waiter

	sendMu sync.Mutex // the single per-session send lock (§5)
	bus    *bus

	sweeperStop chan struct{}
	sweeperDone chan struct{}

	failMu  sync.Mutex
	failure *Status
}

// NewSession creates a detached Session in the Configured state. Call
// Connect before submitting any operation.
func NewSession(config Config) (*Session, error) {
	if config.Host == "" {
		return nil, errors.New("kinetic: Config.Host is required")
	}
	if len(config.HmacKey) == 0 {
		return nil, errors.New("kinetic: Config.HmacKey is required")
	}
	config = config.withDefaults()

	key := make([]byte, len(config.HmacKey))
	copy(key, config.HmacKey)
	config.HmacKey = key

	s := &Session{
		config:         config,
		codec:          config.Codec,
		metrics:        config.Metrics,
		id:             uuid.New(),
		state:          int32(stateConfigured),
		clusterVersion: config.ClusterVersion,
		registry:       newRegistry(config.MaxOutstanding),
		ready:          newWaiter(),
	}
	s.log = config.Logger.WithFields(logrus.Fields{"session": s.id.String()})
	return s, nil
}

func (s *Session) getState() state    { return state(atomic.LoadInt32(&s.state)) }
func (s *Session) setState(st state)  { atomic.StoreInt32(&s.state, int32(st)) }

func (s *Session) setConnectionID(id int64)     { atomic.StoreInt64(&s.connectionID, id) }
func (s *Session) setClusterVersion(v int64)    { atomic.StoreInt64(&s.clusterVersion, v) }
func (s *Session) getConnectionID() int64       { return atomic.LoadInt64(&s.connectionID) }
func (s *Session) getClusterVersion() int64     { return atomic.LoadInt64(&s.clusterVersion) }

// Connect dials the drive, waits for its unsolicited first message, and
// transitions the session to Ready. On failure the session transitions
// to Failed and Connect returns a non-nil *Status.
func (s *Session) Connect(ctx context.Context) *Status {
	if s.getState() != stateConfigured {
		return newStatus(Invalid, "session already connected or destroyed")
	}
	s.setState(stateConnecting)

	transport := s.config.Transport
	if transport == nil {
		var tlsCfg *tls.Config
		if s.config.UseSSL {
			tlsCfg = s.config.TLSConfig
			if tlsCfg == nil {
				tlsCfg = &tls.Config{}
			}
		}
		transport = &tcpTransport{tlsConfig: tlsCfg}
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.config.ConnectionTimeout)
	defer cancel()
	conn, err := transport.Dial(dialCtx, s.config.Host, s.config.Port)
	if err != nil {
		s.setState(stateFailed)
		return wrapStatus(ConnectionError, err)
	}

	s.bus = newBus(s, conn)
	s.bus.start()
	s.startSweeper()

	readyCtx, cancel2 := context.WithTimeout(ctx, s.config.ConnectionTimeout)
	defer cancel2()
	if err := s.ready.wait(readyCtx); err != nil {
		s.setState(stateFailed)
		s.bus.close()
		return wrapStatus(ConnectionError, err)
	}

	s.setState(stateReady)
	s.log.Info("kinetic: session ready")
	return nil
}

// onBusFailure is invoked by bus.fail on any fatal I/O or framing
// error: the session moves to Failed and every outstanding operation
// resolves with the given status.
func (s *Session) onBusFailure(status *Status) {
	s.failMu.Lock()
	s.failure = status
	s.failMu.Unlock()

	s.setState(stateFailed)
	s.ready.signal() // unblock any Connect still waiting
	for _, op := range s.registry.drainAll() {
		op.resolve(&Result{Status: status})
	}
	s.log.WithError(status).Warn("kinetic: session failed")
}

// Destroy releases the session's socket, registry, and secret.
// Idempotent: destroying an already-Gone session is a no-op. From
// Ready it waits up to Config.ShutdownTimeout for outstanding
// operations to resolve, then force-fails the rest with
// ConnectionError.
func (s *Session) Destroy(ctx context.Context) {
	for {
		cur := s.getState()
		if cur == stateGone {
			return
		}
		if cur == stateDraining {
			<-s.sweeperDone
			return
		}
		next := stateDraining
		if cur == stateReady {
			s.setState(next)
			break
		}
		// New/Configured/Connecting/Failed all drain trivially.
		s.setState(next)
		break
	}

	drainCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	s.waitForDrain(drainCtx)

	for _, op := range s.registry.drainAll() {
		op.resolve(&Result{Status: newStatus(ConnectionError, "session destroyed")})
	}

	s.stopSweeper()
	if s.bus != nil {
		s.bus.close()
	}
	for i := range s.config.HmacKey {
		s.config.HmacKey[i] = 0
	}
	s.setState(stateGone)
	s.log.Info("kinetic: session destroyed")
}

func (s *Session) waitForDrain(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for s.registry.size() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// startSweeper launches the background task that resolves expired
// operations with OperationTimedOut (§4.7). Granularity is
// sweepInterval (<=250ms per spec).
func (s *Session) startSweeper() {
	s.sweeperStop = make(chan struct{})
	s.sweeperDone = make(chan struct{})
	go func() {
		defer close(s.sweeperDone)
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-s.sweeperStop:
				return
			case now := <-t.C:
				s.sweepExpired(now)
			}
		}
	}()
}

func (s *Session) stopSweeper() {
	if s.sweeperStop != nil {
		close(s.sweeperStop)
		<-s.sweeperDone
	}
}

func (s *Session) sweepExpired(now time.Time) {
	for _, entry := range s.registry.snapshot() {
		if !entry.Op.expired(now) {
			continue
		}
		if op, ok := s.registry.remove(entry.Sequence); ok {
			s.metrics.timeouts.Inc()
			op.resolve(&Result{Status: newStatus(OperationTimedOut, "operation timed out")})
		}
	}
}

// Execute submits req synchronously, blocking until the operation
// resolves or its timeout elapses. A zero timeout uses
// Config.OperationTimeout.
func (s *Session) Execute(ctx context.Context, req *Request, timeout time.Duration) *Result {
	if timeout == 0 {
		timeout = s.config.OperationTimeout
	}
	gate := newGateCompletion()
	op, st := s.submit(ctx, req, timeout, gate)
	if st != nil {
		return &Result{Status: st}
	}
	// The registry's timeout sweeper (§4.7) resolves op with
	// OperationTimedOut once its deadline passes, which unblocks
	// gate.ch below; ctx.Done() covers caller-side cancellation with a
	// tighter or different deadline than op's own.
	select {
	case res := <-gate.ch:
		return res
	case <-ctx.Done():
		if op, ok := s.registry.remove(op.sequence); ok {
			op.resolve(&Result{Status: wrapStatus(OperationTimedOut, ctx.Err())})
		}
		return &Result{Status: wrapStatus(OperationTimedOut, ctx.Err())}
	}
}

// ExecuteAsync submits req and returns immediately; cb is invoked with
// the terminal Result once the operation resolves (possibly on the
// receive goroutine — cb must not block). The returned Status reports
// only submission failures (e.g. SslRequired, back-pressure timeout);
// Success here means "submitted", not "completed".
func (s *Session) ExecuteAsync(ctx context.Context, req *Request, timeout time.Duration, cb Callback) *Status {
	if timeout == 0 {
		timeout = s.config.OperationTimeout
	}
	_, st := s.submit(ctx, req, timeout, &callbackCompletion{fn: cb})
	return st
}

// submit implements spec.md §4.7's "Execute operation" steps 1-4: gate
// on readiness, acquire a registry permit, assign the sequence and
// stamp routing fields under the send lock, write the frame, and
// register the operation — all before returning.
func (s *Session) submit(ctx context.Context, req *Request, timeout time.Duration, done completion) (*Operation, *Status) {
	if req.Admin && !s.config.UseSSL {
		return nil, newStatus(SslRequired, "admin operation requires a TLS session")
	}

	if err := s.awaitReady(ctx); err != nil {
		return nil, wrapStatus(ConnectionError, err)
	}
	if st := s.currentFailure(); st != nil {
		return nil, st
	}

	if err := s.registry.acquire(ctx); err != nil {
		return nil, wrapStatus(OperationTimedOut, err)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if st := s.currentFailure(); st != nil {
		s.registry.sem.Release(1)
		return nil, st
	}

	seq := atomic.AddInt64(&s.sequence, 1)
	req.Command.Header.Sequence = seq
	req.Command.Header.AckSequence = 0
	req.Command.Header.ClusterVersion = s.getClusterVersion()
	req.Command.Header.ConnectionID = s.getConnectionID()
	if req.Command.Header.Timeout == 0 {
		req.Command.Header.Timeout = int64(timeout / time.Millisecond)
	}

	op := newOperation(s, req.Command, req.OutValue, req.WantValue, timeout, done)
	op.sequence = seq

	auth := Auth{Identity: s.config.Identity}
	if req.Pin != nil {
		auth.Pin = req.Pin
	}

	if st := s.bus.writeFrame(req.Command, auth, req.OutValue); st != nil {
		s.registry.sem.Release(1)
		return nil, st
	}
	s.registry.insert(seq, op)
	s.metrics.outstanding.Set(float64(s.registry.size()))
	return op, nil
}

// awaitReady blocks while the session is still Connecting, returning
// once it is Ready or the context (bounded by Config.ConnectionTimeout)
// is done. Once the session has reached Ready (or any later state) this
// returns immediately.
func (s *Session) awaitReady(ctx context.Context) error {
	if s.getState() == stateReady {
		return nil
	}
	if s.getState() == stateConnecting {
		waitCtx, cancel := context.WithTimeout(ctx, s.config.ConnectionTimeout)
		defer cancel()
		return s.ready.wait(waitCtx)
	}
	return fmt.Errorf("session not ready (state=%d)", s.getState())
}

func (s *Session) currentFailure() *Status {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failure
}
