// Package scope derives the AWS account context attached to every privileged
// tool call from the fields of an incoming request.
package scope

import (
	"github.com/aws/aws-sdk-go-v2/aws/arn"

	"github.com/zarathustra-ai/awsops-agent/core"
)

// Resolver applies the account scoping rules of the service:
//
//  1. role_arn present: use it, forwarding any profile alongside as base
//     credentials for the assume-role call (the composition itself is
//     delegated to the remote tool server).
//  2. else profile present: use it.
//  3. else: emit the explicit default-credentials marker so downstream tools
//     use ambient credentials rather than silently picking a profile.
//
// Region falls back to a process-wide default when the request omits it.
type Resolver struct {
	defaultRegion string
}

// NewResolver creates a Resolver with the given region fallback.
func NewResolver(defaultRegion string) *Resolver {
	return &Resolver{defaultRegion: defaultRegion}
}

// Resolve derives the account context for one request. A syntactically
// invalid role ARN yields *core.InvalidScopeError; that failure is fatal for
// the request since no retry fixes a malformed ARN.
func (r *Resolver) Resolve(req core.Request) (core.AccountContext, error) {
	region := req.Region
	if region == "" {
		region = r.defaultRegion
	}

	if req.RoleARN != "" {
		parsed, err := arn.Parse(req.RoleARN)
		if err != nil {
			return core.AccountContext{}, &core.InvalidScopeError{RoleARN: req.RoleARN, Reason: err.Error()}
		}
		if parsed.Service != "iam" || parsed.Resource == "" {
			return core.AccountContext{}, &core.InvalidScopeError{RoleARN: req.RoleARN, Reason: "not an IAM role ARN"}
		}
		return core.AccountContext{
			RoleARN: req.RoleARN,
			Profile: req.Profile,
			Region:  region,
		}, nil
	}

	if req.Profile != "" {
		return core.AccountContext{Profile: req.Profile, Region: region}, nil
	}

	return core.AccountContext{DefaultCredentials: true, Region: region}, nil
}
