package core

import (
	"fmt"
	"strings"
)

// AccountContext is the resolved AWS scope attached to every privileged tool
// call on behalf of one request. It is derived once per request by the scope
// resolver and never mutated afterwards.
//
// DefaultCredentials is an explicit marker: when neither profile nor role is
// given, downstream tools must use ambient credentials rather than silently
// picking an arbitrary profile.
type AccountContext struct {
	Profile            string `json:"profile,omitempty"`
	RoleARN            string `json:"role_arn,omitempty"`
	Region             string `json:"region,omitempty"`
	DefaultCredentials bool   `json:"default_credentials,omitempty"`
}

// String renders the scope for logs and prompt context lines.
func (a AccountContext) String() string {
	var parts []string
	if a.RoleARN != "" {
		parts = append(parts, "role_arn="+a.RoleARN)
	}
	if a.Profile != "" {
		parts = append(parts, "profile="+a.Profile)
	}
	if a.DefaultCredentials {
		parts = append(parts, "credentials=default")
	}
	if a.Region != "" {
		parts = append(parts, "region="+a.Region)
	}
	return strings.Join(parts, " ")
}

// PromptLines renders the scope as context lines for the user prompt, the
// same shape the request metadata uses.
func (a AccountContext) PromptLines() []string {
	var lines []string
	if a.RoleARN != "" {
		lines = append(lines, fmt.Sprintf("- role_arn: %s", a.RoleARN))
	}
	if a.Profile != "" {
		lines = append(lines, fmt.Sprintf("- profile: %s", a.Profile))
	}
	if a.DefaultCredentials {
		lines = append(lines, "- credentials: default (ambient)")
	}
	if a.Region != "" {
		lines = append(lines, fmt.Sprintf("- region: %s", a.Region))
	}
	return lines
}
