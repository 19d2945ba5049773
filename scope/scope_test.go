package scope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarathustra-ai/awsops-agent/core"
)

func TestResolve_RoleARNTakesPrecedence(t *testing.T) {
	r := NewResolver("us-east-1")

	acct, err := r.Resolve(core.Request{
		RoleARN: "arn:aws:iam::123456789012:role/ops-agent",
		Profile: "staging",
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::123456789012:role/ops-agent", acct.RoleARN)
	// Profile is forwarded alongside as base credentials for assume-role.
	assert.Equal(t, "staging", acct.Profile)
	assert.False(t, acct.DefaultCredentials)
}

func TestResolve_ProfileOnly(t *testing.T) {
	r := NewResolver("us-east-1")

	acct, err := r.Resolve(core.Request{Profile: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", acct.Profile)
	assert.Empty(t, acct.RoleARN)
	assert.False(t, acct.DefaultCredentials)
}

func TestResolve_DefaultCredentialsMarker(t *testing.T) {
	r := NewResolver("us-east-1")

	acct, err := r.Resolve(core.Request{})
	require.NoError(t, err)
	assert.True(t, acct.DefaultCredentials)
	assert.Empty(t, acct.Profile)
	assert.Empty(t, acct.RoleARN)
}

func TestResolve_RegionFallback(t *testing.T) {
	r := NewResolver("eu-central-1")

	acct, err := r.Resolve(core.Request{Profile: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", acct.Region)

	acct, err = r.Resolve(core.Request{Profile: "prod", Region: "us-west-2"})
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", acct.Region)
}

func TestResolve_MalformedARN(t *testing.T) {
	r := NewResolver("us-east-1")

	for _, bad := range []string{
		"not-an-arn",
		"arn:aws:iam:",
		"arn:aws:s3:::bucket", // valid ARN, wrong service
	} {
		_, err := r.Resolve(core.Request{RoleARN: bad})
		require.Error(t, err, "role_arn %q should be rejected", bad)

		var scopeErr *core.InvalidScopeError
		assert.True(t, errors.As(err, &scopeErr), "expected InvalidScopeError for %q, got %T", bad, err)
	}
}
