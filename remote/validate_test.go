package remote

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_GoodInterface(t *testing.T) {
	require.NoError(t, Validate(pingDescriptor()))
}

func TestValidate_MissingTransportFailure(t *testing.T) {
	type BadService struct {
		Identity
		Do func(i int32) (int32, error)
	}
	d, err := NewDescriptor("BadService", BadService{}, Method{
		Name:       "Do",
		ParamTypes: []reflect.Type{reflect.TypeOf(int32(0))},
		ReturnType: reflect.TypeOf(int32(0)),
		Failures:   nil, // does not declare remote.Failure
	})
	require.NoError(t, err)

	err = Validate(d)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadInterface))
}

func TestValidate_NilDescriptor(t *testing.T) {
	err := Validate(nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNullArgument))
}

func TestNewDescriptor_FieldSignatureMismatch(t *testing.T) {
	type Mismatched struct {
		Identity
		// declared as returning a string, but the method claims int32
		Greet func(name string) (string, error)
	}
	_, err := NewDescriptor("Mismatched", Mismatched{}, Method{
		Name:       "Greet",
		ParamTypes: []reflect.Type{reflect.TypeOf("")},
		ReturnType: reflect.TypeOf(int32(0)),
		Failures:   []reflect.Type{TransportFailureType},
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadInterface))
}
