package remote

import (
	"net"
	"os"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// wildcardHost is the INADDR_ANY form a skeleton reports when it was
// configured to bind to all interfaces (a skeleton with no configured
// address binds to 127.0.0.1 instead). See spec §4.3 overload 1:
// "unknown-host (wildcard address with no resolvable local host)".
const wildcardHost = "0.0.0.0"

// resolveWildcard replaces a wildcard bind address with a locally
// resolvable hostname, since a stub embeds the address for a different
// process to dial. Fails with *unknown-host* if no local hostname
// resolves.
func resolveWildcard(addr Address) (Address, error) {
	if addr.Host != wildcardHost && addr.Host != "" {
		return addr, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return Address{}, errUnknownHost("could not determine local hostname", err)
	}
	if _, err := net.LookupHost(host); err != nil {
		return Address{}, errUnknownHost("local hostname does not resolve: "+host, err)
	}
	return Address{Host: host, Port: addr.Port}, nil
}

// StubOption configures a stub built by CreateStub / CreateStubAt /
// CreateStubWithHostname.
type StubOption func(*stubConfig)

type stubConfig struct {
	logger *zap.Logger
}

// WithStubLogger injects a structured logger used for per-call dial/
// write/read tracing (spec §1 ambient stack). Defaults to a no-op logger.
func WithStubLogger(logger *zap.Logger) StubOption {
	return func(c *stubConfig) { c.logger = logger }
}

func newStubConfig(opts []StubOption) stubConfig {
	cfg := stubConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// CreateStub populates stub (a pointer to a zero-value instance of the
// user's blueprint struct) into a working dynamic proxy addressed at
// skeleton's current bound address (spec §4.3 overload 1). Fails with
// *illegal-state* if the skeleton has no address yet.
func CreateStub(stub interface{}, descriptor *Descriptor, skeleton *Skeleton, opts ...StubOption) error {
	if skeleton == nil {
		return errNullArgument("skeleton")
	}
	addr, ok := skeleton.boundAddress()
	if !ok {
		return errIllegalState("skeleton has no bound address; call Start first")
	}
	addr, err := resolveWildcard(addr)
	if err != nil {
		return err
	}
	return createStub(stub, descriptor, addr, newStubConfig(opts))
}

// CreateStubWithHostname is spec §4.3 overload 2: it uses skeleton's
// current bound port but a caller-supplied hostname. Fails with
// *illegal-state* if the skeleton has no assigned port, or if the
// skeleton's port is outside 1..65535 (the off-by-one in the source this
// spec is based on is fixed here per §9).
func CreateStubWithHostname(stub interface{}, descriptor *Descriptor, skeleton *Skeleton, hostname string, opts ...StubOption) error {
	if skeleton == nil {
		return errNullArgument("skeleton")
	}
	if hostname == "" {
		return errNullArgument("hostname")
	}
	addr, ok := skeleton.boundAddress()
	if !ok {
		return errIllegalState("skeleton has no assigned port; call Start first")
	}
	if addr.Port < 1 || addr.Port > 65535 {
		return errIllegalState("skeleton port out of valid range 1..65535")
	}
	return createStub(stub, descriptor, Address{Host: hostname, Port: addr.Port}, newStubConfig(opts))
}

// CreateStubAt is spec §4.3 overload 3 (the bootstrap case): it uses a
// caller-supplied address directly.
func CreateStubAt(stub interface{}, descriptor *Descriptor, address *Address, opts ...StubOption) error {
	if address == nil {
		return errNullArgument("address")
	}
	return createStub(stub, descriptor, *address, newStubConfig(opts))
}

func createStub(stub interface{}, descriptor *Descriptor, address Address, cfg stubConfig) error {
	if stub == nil {
		return errNullArgument("stub")
	}
	if descriptor == nil {
		return errNullArgument("descriptor")
	}
	if err := Validate(descriptor); err != nil {
		return err
	}

	v := reflect.ValueOf(stub)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return errBadInterface("stub must be a non-nil pointer to a struct")
	}
	elem := v.Elem()
	if elem.Type() != descriptor.Blueprint {
		return errBadInterface("stub type does not match descriptor blueprint")
	}

	idField := elem.FieldByName("Identity")
	if !idField.IsValid() || idField.Type() != reflect.TypeOf(Identity{}) {
		return errBadInterface("blueprint does not embed remote.Identity")
	}
	idField.Set(reflect.ValueOf(Identity{Descriptor: descriptor, Address: address}))

	for _, name := range descriptor.order {
		method := descriptor.methods[name]
		field := elem.FieldByName(name)
		fnType := field.Type()
		closure := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
			return invokeRemote(method, address, fnType, args, cfg)
		})
		field.Set(closure)
	}
	return nil
}

// invokeRemote implements the per-method proxy behavior of spec §4.3:
// open a fresh connection, write-flush-then-read, send the Request built
// from the method's declared signature and the caller's arguments, and
// translate the Response back into reflect.Values matching fnType's
// outputs.
func invokeRemote(method Method, address Address, fnType reflect.Type, args []reflect.Value, cfg stubConfig) []reflect.Value {
	callID := uuid.New()
	log := cfg.logger.With(zap.String("call_id", callID.String()), zap.String("method", method.Name))

	fail := func(f *Failure) []reflect.Value {
		log.Debug("remote call failed", zap.Error(f))
		return zeroOutputsWithFailure(fnType, f)
	}

	conn, err := net.DialTimeout("tcp", address.String(), 10*time.Second)
	if err != nil {
		return fail(errTransport("dial failed", err))
	}
	fr := newFrame(conn)
	defer fr.Close()

	if err := fr.exchangeHeader(); err != nil {
		return fail(errTransport("header exchange failed", err))
	}

	argIfcs := make([]interface{}, len(args))
	for i, a := range args {
		argIfcs[i] = a.Interface()
	}
	req := &Request{
		CallID:           callID,
		Method:           method.Name,
		ParamTypeNames:   method.paramTypeNames(),
		Args:             argIfcs,
		DeclaredReturnTy: typeID(method.ReturnType),
	}
	if err := fr.writeRequest(req); err != nil {
		return fail(errTransport("sending request failed", err))
	}

	resp, err := fr.readResponse()
	if err != nil {
		return fail(errTransport("reading response failed", err))
	}

	switch resp.Status {
	case StatusVoid:
		return zeroOutputsWithFailure(fnType, nil)
	case StatusSuccess:
		return successOutputs(fnType, resp.Payload)
	case StatusFailed:
		return fail(reconcileFailure(method, resp.Payload))
	default:
		return fail(errTransport("unrecognized response status: "+resp.Status, nil))
	}
}

// reconcileFailure re-raises a decoded failure verbatim if its concrete
// type was declared for the method, otherwise wraps it in a *Failure of
// KindTransport (spec §4.3, §7, §8's "undeclared user failure" law).
func reconcileFailure(method Method, payload interface{}) *Failure {
	if payload == nil {
		return errTransport("server reported failure with no payload", nil)
	}
	if f, ok := payload.(*Failure); ok {
		return f
	}
	asErr, ok := payload.(error)
	if !ok {
		return errTransport("failure payload does not implement error", nil)
	}
	payloadType := reflect.TypeOf(payload)
	for _, declared := range method.Failures {
		if declared == payloadType {
			return wrapDeclaredFailure(asErr)
		}
	}
	return errTransport("undeclared failure type from remote method: "+payloadType.String(), asErr)
}

// wrapDeclaredFailure marks a declared failure so that the call site can
// tell it apart from a transport-level problem while still returning the
// user's original error value to the caller.
func wrapDeclaredFailure(err error) *Failure {
	if f, ok := err.(*Failure); ok {
		return f
	}
	return &Failure{Kind: KindUser, Message: err.Error(), Cause: err}
}

func zeroOutputsWithFailure(fnType reflect.Type, failure *Failure) []reflect.Value {
	n := fnType.NumOut()
	out := make([]reflect.Value, n)
	for i := 0; i < n-1; i++ {
		out[i] = reflect.Zero(fnType.Out(i))
	}
	errType := fnType.Out(n - 1)
	ev := reflect.New(errType).Elem()
	if failure != nil {
		raised := failureAsDeclaredOrTransport(failure)
		ev.Set(reflect.ValueOf(raised))
	}
	out[n-1] = ev
	return out
}

// failureAsDeclaredOrTransport unwraps a KindUser-marked *Failure back to
// the user's original error value so it is re-raised with fidelity (spec
// §4.3: "re-raised as-is"); any other kind is raised as the *Failure
// itself.
func failureAsDeclaredOrTransport(f *Failure) error {
	if f.Kind == KindUser && f.Cause != nil {
		return f.Cause
	}
	return f
}

func successOutputs(fnType reflect.Type, payload interface{}) []reflect.Value {
	n := fnType.NumOut()
	out := make([]reflect.Value, n)
	if n == 2 {
		if payload == nil {
			out[0] = reflect.Zero(fnType.Out(0))
		} else {
			out[0] = reflect.ValueOf(payload)
		}
	}
	errType := fnType.Out(n - 1)
	out[n-1] = reflect.Zero(errType)
	return out
}
