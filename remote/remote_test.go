package remote

import (
	"encoding/gob"
	"fmt"
	"reflect"
	"time"
)

// Test fixtures grounded in the spec's §8 end-to-end scenarios: a ping
// service, a divider service that can raise a declared user failure, and
// an unrelated error type to exercise the undeclared-failure wrapping
// law.

type PingService struct {
	Identity
	Ping func(i int32) (string, error)
}

func pingDescriptor() *Descriptor {
	d, err := NewDescriptor("PingService", PingService{}, Method{
		Name:       "Ping",
		ParamTypes: []reflect.Type{reflect.TypeOf(int32(0))},
		ReturnType: reflect.TypeOf(""),
		Failures:   []reflect.Type{TransportFailureType},
	})
	if err != nil {
		panic(err)
	}
	return d
}

type pingImpl struct{}

func (p *pingImpl) Ping(i int32) (string, error) {
	return fmt.Sprintf("pong%d", i), nil
}

// panicPingImpl always panics, to exercise safeDispatch's panic guard and
// the service_error hook.
type panicPingImpl struct{}

func (p *panicPingImpl) Ping(i int32) (string, error) {
	panic("boom")
}

// ArithmeticError is a declared user failure for DividerService.Divide.
type ArithmeticError struct {
	Message string
}

func (e *ArithmeticError) Error() string { return e.Message }

type DividerService struct {
	Identity
	Divide func(a, b int32) (int32, error)
}

func dividerDescriptor() *Descriptor {
	d, err := NewDescriptor("DividerService", DividerService{}, Method{
		Name:       "Divide",
		ParamTypes: []reflect.Type{reflect.TypeOf(int32(0)), reflect.TypeOf(int32(0))},
		ReturnType: reflect.TypeOf(int32(0)),
		Failures:   []reflect.Type{TransportFailureType, reflect.TypeOf(&ArithmeticError{})},
	})
	if err != nil {
		panic(err)
	}
	return d
}

type dividerImpl struct{}

func (d *dividerImpl) Divide(a, b int32) (int32, error) {
	if b == 0 {
		return 0, &ArithmeticError{Message: "division by zero"}
	}
	return a / b, nil
}

// UnrelatedError is gob-registered but never declared as a failure of any
// method below, so it exercises the undeclared-failure wrapping law.
type UnrelatedError struct {
	Msg string
}

func (e *UnrelatedError) Error() string { return e.Msg }

func init() {
	gob.Register(&UnrelatedError{})
}

type unreliableDividerImpl struct{}

func (d *unreliableDividerImpl) Divide(a, b int32) (int32, error) {
	return 0, &UnrelatedError{Msg: "simulated unrelated failure"}
}

type SleeperService struct {
	Identity
	Sleep func(ms int32) error
}

func sleeperDescriptor() *Descriptor {
	d, err := NewDescriptor("SleeperService", SleeperService{}, Method{
		Name:       "Sleep",
		ParamTypes: []reflect.Type{reflect.TypeOf(int32(0))},
		Failures:   []reflect.Type{TransportFailureType},
	})
	if err != nil {
		panic(err)
	}
	return d
}

type sleeperImpl struct{}

func (s *sleeperImpl) Sleep(ms int32) error {
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return nil
}
