package remote

import (
	"fmt"
	"net"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is one of the SkeletonState values of spec §3.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StoppedHook is invoked exactly once per stop, after the listener task
// has exited, with the terminating cause (nil for a clean stop).
type StoppedHook func(cause error)

// ListenErrorHook is invoked on any error from the accept loop other than
// the listener socket being closed by Stop. Returning true resumes
// accepting; the default returns false (do not resume).
type ListenErrorHook func(err error) bool

// ServiceErrorHook is invoked for any service-task failure that is not
// the user method's own failure.
type ServiceErrorHook func(failure *Failure)

// SkeletonOption configures a Skeleton at construction time.
type SkeletonOption func(*skeletonConfig)

type skeletonConfig struct {
	logger       *zap.Logger
	stopped      StoppedHook
	listenError  ListenErrorHook
	serviceError ServiceErrorHook
}

// WithLogger injects a structured logger for the skeleton's lifecycle and
// default hooks (spec §1 ambient stack).
func WithLogger(logger *zap.Logger) SkeletonOption {
	return func(c *skeletonConfig) { c.logger = logger }
}

// WithStoppedHook overrides the default stopped(cause) hook.
func WithStoppedHook(hook StoppedHook) SkeletonOption {
	return func(c *skeletonConfig) { c.stopped = hook }
}

// WithListenErrorHook overrides the default listen_error(err) hook.
func WithListenErrorHook(hook ListenErrorHook) SkeletonOption {
	return func(c *skeletonConfig) { c.listenError = hook }
}

// WithServiceErrorHook overrides the default service_error(failure) hook.
func WithServiceErrorHook(hook ServiceErrorHook) SkeletonOption {
	return func(c *skeletonConfig) { c.serviceError = hook }
}

// Stats reports the skeleton's call-serving activity, generalizing the
// teacher's Service.remote_calls_served counter with an in-flight gauge
// (spec §6, "Supplemented features").
type Stats struct {
	CallsServed uint64
	InFlight    int64
}

// Skeleton is the server-side endpoint of spec §4.4: it owns a listening
// socket and a listener task plus one service task per accepted
// connection, dispatching requests to implementation by reflection.
type Skeleton struct {
	descriptor *Descriptor
	impl       reflect.Value
	cfg        skeletonConfig

	mu            sync.Mutex
	state         State
	address       Address
	hasAddr       bool
	ln            net.Listener
	group         *errgroup.Group
	lastStopCause error

	callsServed uint64
	inFlight    int64
}

// NewSkeleton validates descriptor (spec §4.1) and constructs a Skeleton
// around implementation, optionally bound to address. Rejects a nil
// descriptor or implementation with *null-argument*.
func NewSkeleton(descriptor *Descriptor, implementation interface{}, address *Address, opts ...SkeletonOption) (*Skeleton, error) {
	if descriptor == nil {
		return nil, errNullArgument("descriptor")
	}
	if implementation == nil {
		return nil, errNullArgument("implementation")
	}
	if err := Validate(descriptor); err != nil {
		return nil, err
	}

	cfg := skeletonConfig{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	// Defaults log instead of silently doing nothing, matching the
	// teacher's habit of never swallowing an error without a trace.
	if cfg.stopped == nil {
		l := cfg.logger
		cfg.stopped = func(cause error) {
			if cause != nil {
				l.Info("skeleton stopped", zap.Error(cause))
			} else {
				l.Info("skeleton stopped")
			}
		}
	}
	if cfg.listenError == nil {
		l := cfg.logger
		cfg.listenError = func(err error) bool {
			l.Error("listener error", zap.Error(err))
			return false
		}
	}
	if cfg.serviceError == nil {
		l := cfg.logger
		cfg.serviceError = func(f *Failure) {
			l.Error("service error", zap.Error(f))
		}
	}

	s := &Skeleton{
		descriptor: descriptor,
		impl:       reflect.ValueOf(implementation),
		cfg:        cfg,
		state:      StateCreated,
	}
	if address != nil {
		s.address = *address
		s.hasAddr = true
	}
	return s, nil
}

// GetAddress returns the skeleton's configured or bound address; safe to
// call in any state. The second value is false if no address has been
// configured or assigned yet.
func (s *Skeleton) GetAddress() (Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address, s.hasAddr
}

// GetPort is a convenience accessor over GetAddress.
func (s *Skeleton) GetPort() (int, bool) {
	addr, ok := s.GetAddress()
	if !ok {
		return 0, false
	}
	return addr.Port, true
}

func (s *Skeleton) boundAddress() (Address, bool) {
	return s.GetAddress()
}

// State reports the skeleton's current lifecycle state.
func (s *Skeleton) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats reports the skeleton's call-serving activity.
func (s *Skeleton) Stats() Stats {
	return Stats{
		CallsServed: atomic.LoadUint64(&s.callsServed),
		InFlight:    atomic.LoadInt64(&s.inFlight),
	}
}

// Start binds the listening socket and launches the listener task (spec
// §4.4.1). Fails with *transport* ("already running") unless the
// skeleton is CREATED or STOPPED; restartable per spec §3.
func (s *Skeleton) Start() error {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StateStopping {
		s.mu.Unlock()
		return errTransport("skeleton already running", nil)
	}

	host := s.address.Host
	if !s.hasAddr {
		host = "127.0.0.1"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(s.address.Port)))
	if err != nil {
		s.mu.Unlock()
		return errTransport("failed to bind listening socket", err)
	}
	tcpAddr := ln.Addr().(*net.TCPAddr)
	s.address = Address{Host: host, Port: tcpAddr.Port}
	s.hasAddr = true
	s.ln = ln
	s.state = StateRunning
	// The listener task runs in its own errgroup so Stop can join it
	// (spec §4.4.4 step 3) independently of the service tasks it spawns,
	// which are fire-and-forget (spec §4.4.4: "not forcibly cancelled").
	group := &errgroup.Group{}
	s.group = group
	s.mu.Unlock()

	group.Go(func() error {
		s.acceptLoop(ln)
		return nil
	})
	return nil
}

// acceptLoop is the listener task of spec §4.4.2: accept, launch a
// service task per connection, repeat until the listening socket closes
// or listenError returns false.
func (s *Skeleton) acceptLoop(ln net.Listener) {
	var cause error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopping() {
				cause = nil
			} else if s.cfg.listenError(err) {
				continue
			} else {
				cause = err
			}
			break
		}
		go s.serviceConnection(conn)
	}
	s.lastStopCause = cause
}

func (s *Skeleton) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopping
}

// Stop signals the listener to exit and closes the listening socket,
// which unblocks Accept, then waits for the listener task to join before
// invoking stopped(cause) exactly once (spec §4.4.4). In-flight service
// tasks are not awaited; Stats().InFlight lets a caller observe drain
// progress after Stop returns.
func (s *Skeleton) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	ln := s.ln
	group := s.group
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if group != nil {
		_ = group.Wait()
	}

	s.mu.Lock()
	cause := s.lastStopCause
	s.lastStopCause = nil
	s.state = StateStopped
	s.mu.Unlock()

	s.cfg.stopped(cause)
}

// serviceConnection is one service task (spec §4.4.3): decode exactly one
// Request, dispatch it, write exactly one Response, close the connection.
func (s *Skeleton) serviceConnection(conn net.Conn) {
	atomic.AddInt64(&s.inFlight, 1)
	defer atomic.AddInt64(&s.inFlight, -1)

	fr := newFrame(conn)
	defer fr.Close()

	if err := fr.exchangeHeader(); err != nil {
		s.cfg.serviceError(errTransport("header exchange failed", err))
		return
	}

	req, err := fr.readRequest()
	if err != nil {
		s.cfg.serviceError(errTransport("reading request failed", err))
		resp := &Response{Status: StatusFailed, Payload: errTransport("server could not read request", err)}
		_ = fr.writeResponse(resp)
		return
	}

	atomic.AddUint64(&s.callsServed, 1)
	resp := s.safeDispatch(req)
	if resp.Status == StatusFailed {
		if f, ok := resp.Payload.(*Failure); ok {
			s.cfg.serviceError(f)
		}
	}
	if err := fr.writeResponse(resp); err != nil {
		s.cfg.serviceError(errTransport("writing response failed", err))
	}
}

// safeDispatch runs dispatch with a panic guard: a panicking
// implementation method must not take the whole skeleton down with it,
// only fail the one in-flight call with a transport failure.
func (s *Skeleton) safeDispatch(req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = &Response{
				CallID:  req.CallID,
				Status:  StatusFailed,
				Payload: errTransport("implementation method panicked", fmt.Errorf("%v", r)),
			}
		}
	}()
	return s.dispatch(req)
}

// dispatch resolves and invokes the requested method on the
// implementation object (spec §4.4.3 step 3-4), translating its outcome
// into a Response.
func (s *Skeleton) dispatch(req *Request) *Response {
	method, ok := s.descriptor.resolve(req.Method, req.ParamTypeNames)
	if !ok {
		return &Response{
			CallID:  req.CallID,
			Status:  StatusFailed,
			Payload: errTransport("unresolvable method: "+req.Method, nil),
		}
	}

	implMethod := s.impl.MethodByName(method.Name)
	if !implMethod.IsValid() {
		return &Response{
			CallID:  req.CallID,
			Status:  StatusFailed,
			Payload: errTransport("implementation does not define method: "+method.Name, nil),
		}
	}
	if implMethod.Type().NumIn() != len(req.Args) {
		return &Response{
			CallID:  req.CallID,
			Status:  StatusFailed,
			Payload: errTransport("argument count mismatch for method: "+method.Name, nil),
		}
	}

	args := make([]reflect.Value, len(req.Args))
	for i, a := range req.Args {
		want := implMethod.Type().In(i)
		if a == nil {
			args[i] = reflect.Zero(want)
			continue
		}
		av := reflect.ValueOf(a)
		if !av.Type().AssignableTo(want) {
			return &Response{
				CallID:  req.CallID,
				Status:  StatusFailed,
				Payload: errTransport("argument type mismatch for method: "+method.Name, nil),
			}
		}
		args[i] = av
	}

	out := implMethod.Call(args)
	return buildResponse(req.CallID, out)
}

// buildResponse translates the reflect.Values returned by the
// implementation method into success/void/failed (spec §4.4.3 step 4).
func buildResponse(callID uuid.UUID, out []reflect.Value) *Response {
	n := len(out)
	errVal := out[n-1]
	if !errVal.IsNil() {
		raised := errVal.Interface().(error)
		return &Response{CallID: callID, Status: StatusFailed, Payload: raised}
	}
	if n == 1 {
		return &Response{CallID: callID, Status: StatusVoid}
	}
	return &Response{CallID: callID, Status: StatusSuccess, Payload: out[0].Interface()}
}
