package remote

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameRoundTrip exercises the write-flush-then-read header exchange
// and one request/response cycle over a real socket pair, the same way a
// stub and a skeleton's service task would use it (spec §4.2, §8 envelope
// round-trip laws).
func TestFrameRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan *Request, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(serverDone)
			return
		}
		defer conn.Close()
		fr := newFrame(conn)
		if err := fr.exchangeHeader(); err != nil {
			close(serverDone)
			return
		}
		req, err := fr.readRequest()
		if err != nil {
			close(serverDone)
			return
		}
		serverDone <- req
		_ = fr.writeResponse(&Response{CallID: req.CallID, Status: StatusSuccess, Payload: "pong0"})
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	fr := newFrame(conn)
	require.NoError(t, fr.exchangeHeader())

	callID := uuid.New()
	sent := &Request{
		CallID:           callID,
		Method:           "Ping",
		ParamTypeNames:   []string{"int32"},
		Args:             []interface{}{int32(0)},
		DeclaredReturnTy: "string",
	}
	require.NoError(t, fr.writeRequest(sent))

	received := <-serverDone
	require.NotNil(t, received)
	assert.Equal(t, sent.CallID, received.CallID)
	assert.Equal(t, sent.Method, received.Method)
	assert.Equal(t, sent.ParamTypeNames, received.ParamTypeNames)
	assert.Equal(t, sent.DeclaredReturnTy, received.DeclaredReturnTy)

	resp, err := fr.readResponse()
	require.NoError(t, err)
	assert.Equal(t, callID, resp.CallID)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "pong0", resp.Payload)
}

// TestFrameRoundTrip_FailurePayload checks that a *Failure payload survives
// the gob round trip with its Kind and Message intact.
func TestFrameRoundTrip_FailurePayload(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fr := newFrame(conn)
		if err := fr.exchangeHeader(); err != nil {
			return
		}
		req, err := fr.readRequest()
		if err != nil {
			return
		}
		_ = fr.writeResponse(&Response{
			CallID:  req.CallID,
			Status:  StatusFailed,
			Payload: errTransport("simulated", nil),
		})
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	fr := newFrame(conn)
	require.NoError(t, fr.exchangeHeader())
	require.NoError(t, fr.writeRequest(&Request{CallID: uuid.New(), Method: "Ping"}))

	resp, err := fr.readResponse()
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, resp.Status)
	failure, ok := resp.Payload.(*Failure)
	require.True(t, ok, "expected *Failure payload, got %T", resp.Payload)
	assert.Equal(t, KindTransport, failure.Kind)
	assert.Equal(t, "simulated", failure.Message)
}

// TestExchangeHeader_Symmetric checks that both sides of a connection can
// run exchangeHeader concurrently without one side's write blocking on the
// other's read (spec §4.2: write-flush-then-read avoids the mutual-read
// deadlock). A real TCP loopback connection is used because its socket
// buffer, unlike net.Pipe's fully synchronous rendezvous, is what the
// discipline is actually designed around.
func TestExchangeHeader_Symmetric(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	errs := make(chan error, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errs <- err
			return
		}
		defer conn.Close()
		errs <- newFrame(conn).exchangeHeader()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	errs <- newFrame(conn).exchangeHeader()

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}
