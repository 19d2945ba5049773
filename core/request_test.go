package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest_PromptField(t *testing.T) {
	req, err := ParseRequest([]byte(`{"prompt":"list secrets","region":"eu-west-1"}`), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "list secrets", req.Prompt)
	assert.Equal(t, "eu-west-1", req.Region)
	assert.Equal(t, "msg-1", req.MessageID)
}

func TestParseRequest_RequestAlias(t *testing.T) {
	req, err := ParseRequest([]byte(`{"request":"rotate the db password","profile":"staging"}`), "msg-2")
	require.NoError(t, err)
	assert.Equal(t, "rotate the db password", req.Prompt)
	assert.Equal(t, "staging", req.Profile)
}

func TestParseRequest_AliasWinsWhenBothSet(t *testing.T) {
	req, err := ParseRequest([]byte(`{"request":"from alias","prompt":"from prompt"}`), "msg-3")
	require.NoError(t, err)
	assert.Equal(t, "from alias", req.Prompt)
}

func TestParseRequest_MissingPrompt(t *testing.T) {
	_, err := ParseRequest([]byte(`{"profile":"prod"}`), "msg-4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestParseRequest_InvalidJSON(t *testing.T) {
	_, err := ParseRequest([]byte(`{not json`), "msg-5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestParseRequest_Metadata(t *testing.T) {
	req, err := ParseRequest([]byte(`{"prompt":"x","metadata":{"team":"platform"},"callback_url":"https://cb"}`), "msg-6")
	require.NoError(t, err)
	assert.Equal(t, "platform", req.Metadata["team"])
	assert.Equal(t, "https://cb", req.CallbackURL)
}

func TestOutcome_Retryable(t *testing.T) {
	assert.False(t, SuccessOutcome("m", "ok").Retryable())
	assert.False(t, FailureOutcome("m", KindInvalidScope, nil).Retryable())
	assert.False(t, FailureOutcome("m", KindMalformedInput, nil).Retryable())
	assert.True(t, FailureOutcome("m", KindIterationLimit, nil).Retryable())
	assert.True(t, FailureOutcome("m", KindTimeout, nil).Retryable())
	assert.True(t, FailureOutcome("m", KindInternal, errors.New("boom")).Retryable())
}

func TestUnrecoverable(t *testing.T) {
	base := errors.New("bad api key")
	wrapped := Unrecoverable(base)
	assert.True(t, IsUnrecoverable(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.False(t, IsUnrecoverable(base))
	assert.Nil(t, Unrecoverable(nil))
}

func TestContent_Helpers(t *testing.T) {
	c := Content{Role: "assistant", Parts: []Part{
		TextPart{Text: "calling "},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "1", Name: "create_secret"}},
		TextPart{Text: "now"},
	}}
	assert.Equal(t, "calling now", c.Text())
	calls := c.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "create_secret", calls[0].Name)
}
