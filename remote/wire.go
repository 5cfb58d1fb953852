package remote

import (
	"bufio"
	"encoding/gob"
	"net"
	"reflect"

	"github.com/google/uuid"
)

// Response status tags (spec §3, canonicalized per §9's open question).
const (
	StatusSuccess = "success"
	StatusVoid    = "void"
	StatusFailed  = "failed"
)

// wireVersion is exchanged as the very first byte on every connection, by
// both endpoints, before either side attempts to read the other's header.
// This is the write-flush-then-read discipline spec §4.2 requires to avoid
// the classic deadlock where both ends block on read.
const wireVersion byte = 1

// Request is the single envelope sent from stub to skeleton per
// connection (spec §3).
type Request struct {
	CallID           uuid.UUID
	Method           string
	ParamTypeNames   []string
	Args             []interface{}
	DeclaredReturnTy string
}

// Response is the single envelope sent back from skeleton to stub per
// connection (spec §3).
type Response struct {
	CallID  uuid.UUID
	Status  string
	Payload interface{}
}

// registerTypes gob.Registers the concrete types a descriptor's methods
// can carry across the wire: parameter types, return types, and declared
// failure types. Called once when a descriptor is built, mirroring the
// teacher's per-call gob.Register technique but performed up front so
// every connection pays the cost once rather than per request.
func registerTypes(d *Descriptor) {
	for _, name := range d.order {
		m := d.methods[name]
		for _, t := range m.ParamTypes {
			registerType(t)
		}
		if m.ReturnType != nil {
			registerType(m.ReturnType)
		}
		for _, t := range m.Failures {
			registerType(t)
		}
	}
}

func registerType(t reflect.Type) {
	if t == nil {
		return
	}
	defer func() {
		// gob.Register panics if the same name is registered with two
		// distinct types (e.g. two identically-named local types). The
		// panic is recovered and discarded here: NewDescriptor still
		// succeeds, nothing is reported, and the later type stays
		// unregistered, so a call carrying it fails when it is encoded.
		_ = recover()
	}()
	gob.Register(reflect.New(t).Elem().Interface())
}

// frame wraps one accepted or dialed connection with the buffered
// reader/writer and gob codec pair used for the single request/response
// exchange that connection will ever carry (spec §4.2: one connection per
// call, closed after exactly one envelope in each direction).
type frame struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	enc  *gob.Encoder
	dec  *gob.Decoder
}

func newFrame(conn net.Conn) *frame {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	return &frame{
		conn: conn,
		r:    r,
		w:    w,
		enc:  gob.NewEncoder(w),
		dec:  gob.NewDecoder(r),
	}
}

// exchangeHeader writes this side's version byte and flushes it, then
// reads the peer's version byte. Both sides call this immediately after
// the connection is established, in this order, so that neither side's
// read can block on a write the peer has not yet issued.
func (f *frame) exchangeHeader() error {
	if err := f.w.WriteByte(wireVersion); err != nil {
		return err
	}
	if err := f.w.Flush(); err != nil {
		return err
	}
	if _, err := f.r.ReadByte(); err != nil {
		return err
	}
	return nil
}

func (f *frame) writeRequest(req *Request) error {
	if err := f.enc.Encode(req); err != nil {
		return err
	}
	return f.w.Flush()
}

func (f *frame) readRequest() (*Request, error) {
	var req Request
	if err := f.dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (f *frame) writeResponse(resp *Response) error {
	// A *Failure's Cause is usually of a type gob cannot carry (such as the
	// pkg/errors stack wrapper), so it is folded into the Message instead.
	if fl, ok := resp.Payload.(*Failure); ok && fl.Cause != nil {
		flat := &Failure{Kind: fl.Kind, Message: fl.Message + ": " + fl.Cause.Error()}
		resp = &Response{CallID: resp.CallID, Status: resp.Status, Payload: flat}
	}
	if err := f.enc.Encode(resp); err != nil {
		return err
	}
	return f.w.Flush()
}

func (f *frame) readResponse() (*Response, error) {
	var resp Response
	if err := f.dec.Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *frame) Close() error {
	return f.conn.Close()
}
