package remote

import (
	"encoding/gob"
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

func init() {
	// The runtime's own failure kind must always be transportable,
	// regardless of which descriptor-specific types a given interface
	// registers (spec §9: "the runtime's transport kind must always be
	// transportable").
	gob.Register(&Failure{})
}

// Kind identifies one of the runtime's failure categories (spec §7).
type Kind int

const (
	// KindUser marks a decoded failure whose concrete type matched the
	// invoked method's declared failure set; it is re-raised verbatim.
	KindUser Kind = iota
	KindNullArgument
	KindBadInterface
	KindIllegalState
	KindUnknownHost
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindNullArgument:
		return "null-argument"
	case KindBadInterface:
		return "bad-interface"
	case KindIllegalState:
		return "illegal-state"
	case KindUnknownHost:
		return "unknown-host"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Failure is the runtime's own error type. Every remote interface method
// must declare it among its failures (validated by Validate); it is the
// sole kind the skeleton and stub can always surface without regard to
// what the user's interface otherwise declares.
type Failure struct {
	Kind    Kind
	Message string
	Cause   error
}

// TransportFailureType is the reflect.Type that the interface validator
// looks for in every method's declared failure set.
var TransportFailureType = reflect.TypeOf((*Failure)(nil))

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("remote: %s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("remote: %s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

// newFailure builds a *Failure of the given kind, wrapping cause (if any)
// with a stack trace via pkg/errors so the cause remains inspectable.
func newFailure(kind Kind, message string, cause error) *Failure {
	f := &Failure{Kind: kind, Message: message}
	if cause != nil {
		f.Cause = errors.WithStack(cause)
	}
	return f
}

func errNullArgument(what string) *Failure {
	return newFailure(KindNullArgument, what+" must not be nil", nil)
}

func errBadInterface(why string) *Failure {
	return newFailure(KindBadInterface, why, nil)
}

func errIllegalState(why string) *Failure {
	return newFailure(KindIllegalState, why, nil)
}

func errUnknownHost(why string, cause error) *Failure {
	return newFailure(KindUnknownHost, why, cause)
}

func errTransport(why string, cause error) *Failure {
	return newFailure(KindTransport, why, cause)
}

// IsKind reports whether err is a *Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	f, ok := err.(*Failure)
	return ok && f.Kind == kind
}
