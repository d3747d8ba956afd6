// Package remote holds the engine-native representations of remote
// execution messages and the stateless conversions between them and their
// wire (REAPI / google.longrunning) protobuf forms.
package remote

import (
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/quarrybuild/quarry/engine/hashing"
)

type (
	// Operation is the engine-native view of a long-running remote
	// operation. Exactly one of Response and Error is set once Done.
	Operation struct {
		Name     string
		Metadata *anypb.Any
		Done     bool
		Response *anypb.Any
		Error    *Status
	}

	// Status is the engine-native view of an RPC status.
	Status struct {
		Code    int32
		Message string
		Details []*anypb.Any
	}

	// ExecuteRequest is the engine-native view of a remote execution
	// request. It deliberately carries no execution or results-cache
	// policy: requests with either set cannot be represented here.
	ExecuteRequest struct {
		InstanceName    string
		ActionDigest    hashing.Digest
		SkipCacheLookup bool
	}
)
