package remote

// Validate decides whether descriptor qualifies as a remote interface
// (spec §4.1). It is invoked by both the stub constructors (CreateStub,
// CreateStubWithHostname, CreateStubAt) and NewSkeleton before either
// will touch the network, so that the skeleton can always surface
// transport errors to its callers.
//
// Rules, evaluated in order:
//  1. descriptor must be non-nil, carry a blueprint type, and declare at
//     least one method (NewDescriptor has already checked that the
//     blueprint is a struct type).
//  2. every declared method must list TransportFailureType among its
//     declared failures.
func Validate(descriptor *Descriptor) error {
	if descriptor == nil {
		return errNullArgument("descriptor")
	}
	if descriptor.Blueprint == nil {
		return errBadInterface("descriptor has no blueprint type")
	}
	if len(descriptor.methods) == 0 {
		return errBadInterface("descriptor declares no methods")
	}
	for _, name := range descriptor.order {
		m := descriptor.methods[name]
		if !m.declaresTransport() {
			return errBadInterface("method " + name + " does not declare remote.Failure among its failure types")
		}
	}
	return nil
}
