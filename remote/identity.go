package remote

import (
	"hash/fnv"
	"net"
	"strconv"
)

// Address is a host/port pair (spec §3). A zero Port is permitted and
// means OS-assigned; it is only ever observed pre-bind.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Identity is embedded into every user-declared remote interface struct.
// CreateStub (or one of its variants) populates its two fields; from
// then on Equal, HashCode and
// String answer locally, without any network access (spec §4.3).
type Identity struct {
	Descriptor *Descriptor
	Address    Address
}

// Equal reports whether two stub identities refer to the same interface
// at the same address. Equality against a zero-value or differently-typed
// identity is false; it never touches the network.
func (id Identity) Equal(other Identity) bool {
	return id.Descriptor.Equal(other.Descriptor) && id.Address == other.Address
}

// HashCode combines the descriptor and address components.
func (id Identity) HashCode() uint64 {
	h := fnv.New64a()
	if id.Descriptor != nil {
		_, _ = h.Write([]byte(id.Descriptor.Name))
	}
	_, _ = h.Write([]byte(id.Address.String()))
	return h.Sum64()
}

// String renders "<interface-name>, <address>" per spec §4.3.
func (id Identity) String() string {
	name := "<nil>"
	if id.Descriptor != nil {
		name = id.Descriptor.Name
	}
	return name + ", " + id.Address.String()
}
