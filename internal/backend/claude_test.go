package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxiglade/cica/internal/logger"
)

func TestParseOutput_ResultLine(t *testing.T) {
	output := []byte(`{"type":"system","subtype":"init"}
{"type":"assistant","message":"thinking"}
{"type":"result","result":"Hello!","session_id":"sess-123","duration_ms":1500,"is_error":false}
`)

	result, err := parseOutput(output)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", result.Text)
	assert.Equal(t, "sess-123", result.SessionID)
}

func TestParseOutput_ErrorResult(t *testing.T) {
	output := []byte(`{"type":"result","result":"something went wrong","is_error":true}`)

	_, err := parseOutput(output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something went wrong")
}

func TestParseOutput_NoResultLine(t *testing.T) {
	output := []byte(`{"type":"system"}
not json at all
`)

	_, err := parseOutput(output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no result found")
}

func TestParseOutput_SkipsBlankAndMalformedLines(t *testing.T) {
	output := []byte("\n\ngarbage line\n{\"type\":\"result\",\"result\":\"ok\",\"session_id\":\"s1\"}\n")

	result, err := parseOutput(output)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
}

func TestNewClaudeCLI_DefaultBinary(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)

	c := NewClaudeCLI(ClaudeConfig{}, log)
	assert.Equal(t, "claude", c.cfg.Binary)

	c = NewClaudeCLI(ClaudeConfig{Binary: "/opt/claude"}, log)
	assert.Equal(t, "/opt/claude", c.cfg.Binary)
}
