package remote

import (
	"fmt"

	"cloud.google.com/go/longrunning/autogen/longrunningpb"
	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"

	"github.com/quarrybuild/quarry/engine/hashing"
)

// DigestToProto converts a native digest to its REAPI wire form.
func DigestToProto(d hashing.Digest) *repb.Digest {
	return &repb.Digest{
		Hash:      d.Fingerprint.Hex(),
		SizeBytes: d.SizeBytes,
	}
}

// DigestFromProto converts a REAPI digest to its native form. It fails with
// a descriptive error, including the offending hash text, when the hash is
// not valid hex of the expected length.
func DigestFromProto(d *repb.Digest) (hashing.Digest, error) {
	fp, err := hashing.FingerprintFromHex(d.GetHash())
	if err != nil {
		return hashing.Digest{}, fmt.Errorf("Bad fingerprint in Digest %q: %v", d.GetHash(), err)
	}
	return hashing.Digest{Fingerprint: fp, SizeBytes: d.GetSizeBytes()}, nil
}

// StatusFromProto converts an RPC status to its native form. Returns nil
// for a nil input.
func StatusFromProto(st *statuspb.Status) *Status {
	if st == nil {
		return nil
	}
	return &Status{
		Code:    st.GetCode(),
		Message: st.GetMessage(),
		Details: st.GetDetails(),
	}
}

// StatusToProto converts a native status to its RPC wire form. Returns nil
// for a nil input.
func StatusToProto(st *Status) *statuspb.Status {
	if st == nil {
		return nil
	}
	return &statuspb.Status{
		Code:    st.Code,
		Message: st.Message,
		Details: st.Details,
	}
}

// OperationFromProto converts a google.longrunning operation to its native
// form.
func OperationFromProto(op *longrunningpb.Operation) Operation {
	return Operation{
		Name:     op.GetName(),
		Metadata: op.GetMetadata(),
		Done:     op.GetDone(),
		Response: op.GetResponse(),
		Error:    StatusFromProto(op.GetError()),
	}
}

// OperationToProto converts a native operation to its google.longrunning
// wire form. When both Response and Error are set, Error wins.
func OperationToProto(op Operation) *longrunningpb.Operation {
	dst := &longrunningpb.Operation{
		Name:     op.Name,
		Metadata: op.Metadata,
		Done:     op.Done,
	}
	switch {
	case op.Error != nil:
		dst.Result = &longrunningpb.Operation_Error{Error: StatusToProto(op.Error)}
	case op.Response != nil:
		dst.Result = &longrunningpb.Operation_Response{Response: op.Response}
	}
	return dst
}

// ExecuteRequestFromProto converts a REAPI execute request to its native
// form. Requests carrying an execution policy or results-cache policy
// cannot be represented natively: converting one is a programming error and
// panics rather than silently dropping the policy.
func ExecuteRequestFromProto(req *repb.ExecuteRequest) (ExecuteRequest, error) {
	if req.GetExecutionPolicy() != nil || req.GetResultsCachePolicy() != nil {
		panic("cannot convert ExecuteRequest with execution policy or results cache policy")
	}
	digest, err := DigestFromProto(req.GetActionDigest())
	if err != nil {
		return ExecuteRequest{}, err
	}
	return ExecuteRequest{
		InstanceName:    req.GetInstanceName(),
		ActionDigest:    digest,
		SkipCacheLookup: req.GetSkipCacheLookup(),
	}, nil
}

// ExecuteRequestToProto converts a native execute request to its REAPI wire
// form.
func ExecuteRequestToProto(req ExecuteRequest) *repb.ExecuteRequest {
	return &repb.ExecuteRequest{
		InstanceName:    req.InstanceName,
		ActionDigest:    DigestToProto(req.ActionDigest),
		SkipCacheLookup: req.SkipCacheLookup,
	}
}
