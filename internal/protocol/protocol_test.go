package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunCommand(t *testing.T) {
	cmd, err := Parse([]byte(`{"type":"run-command","provider":"process","command":"build","options":{"projectPath":"/p","model":"gpt","skipPermissions":true}}`))
	require.NoError(t, err)

	assert.Equal(t, TypeRunCommand, cmd.Type)
	assert.Equal(t, ProviderProcess, cmd.Provider)
	assert.Equal(t, "build", cmd.Text)
	assert.Equal(t, "/p", cmd.Options.Path())
	assert.Equal(t, "gpt", cmd.Options.Model)
	assert.False(t, cmd.Options.Resume)
	assert.Contains(t, cmd.Options.Extra, "skipPermissions")
	assert.NotContains(t, cmd.Options.Extra, "model")
}

func TestParseRunCommandWithSessionIDImpliesResume(t *testing.T) {
	cmd, err := Parse([]byte(`{"type":"run-command","provider":"claude","command":"go on","options":{"sessionId":"abc","cwd":"/w"}}`))
	require.NoError(t, err)

	assert.Equal(t, ProviderStream, cmd.Provider)
	assert.Equal(t, "abc", cmd.SessionID)
	assert.True(t, cmd.Options.Resume)
	assert.Equal(t, "/w", cmd.Options.Path())
}

func TestParseLegacyResume(t *testing.T) {
	for _, typ := range []string{"resume-legacy", "cursor-resume"} {
		t.Run(typ, func(t *testing.T) {
			cmd, err := Parse([]byte(`{"type":"` + typ + `","sessionId":"S9","options":{"cwd":"/repo"}}`))
			require.NoError(t, err)

			assert.Equal(t, TypeRunCommand, cmd.Type)
			assert.Equal(t, ProviderProcess, cmd.Provider)
			assert.Equal(t, "", cmd.Text)
			assert.Equal(t, "S9", cmd.SessionID)
			assert.True(t, cmd.Options.Resume)
			assert.Equal(t, "/repo", cmd.Options.Path())
		})
	}
}

func TestParseLegacyResumeRequiresSessionID(t *testing.T) {
	_, err := Parse([]byte(`{"type":"cursor-resume"}`))
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestParseProviderCommandAliases(t *testing.T) {
	cmd, err := Parse([]byte(`{"type":"claude-command","command":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, ProviderStream, cmd.Provider)

	cmd, err = Parse([]byte(`{"type":"cursor-command","command":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, ProviderProcess, cmd.Provider)
}

func TestParseAbortDefaultsToStream(t *testing.T) {
	cmd, err := Parse([]byte(`{"type":"abort-session","sessionId":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeAbortSession, cmd.Type)
	assert.Equal(t, ProviderStream, cmd.Provider)

	cmd, err = Parse([]byte(`{"type":"abort-session","sessionId":"x","provider":"cursor"}`))
	require.NoError(t, err)
	assert.Equal(t, ProviderProcess, cmd.Provider)
}

func TestParseProviderSpecificAbort(t *testing.T) {
	for _, typ := range []string{"provider-specific-abort", "cursor-abort"} {
		cmd, err := Parse([]byte(`{"type":"` + typ + `","sessionId":"x"}`))
		require.NoError(t, err)
		assert.Equal(t, TypeAbortSession, cmd.Type)
		assert.Equal(t, ProviderProcess, cmd.Provider)
		assert.Equal(t, "x", cmd.SessionID)
	}
}

func TestParseStatusAndList(t *testing.T) {
	cmd, err := Parse([]byte(`{"type":"check-session-status","sessionId":"x","provider":"process"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeCheckStatus, cmd.Type)
	assert.Equal(t, ProviderProcess, cmd.Provider)

	cmd, err = Parse([]byte(`{"type":"get-active-sessions"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeGetActiveSessions, cmd.Type)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"unknown type", `{"type":"launch-missiles"}`, ErrUnknownType},
		{"missing type", `{"sessionId":"x"}`, ErrMissingField},
		{"bad provider", `{"type":"run-command","provider":"gemini"}`, ErrUnknownProvider},
		{"abort without id", `{"type":"abort-session"}`, ErrMissingField},
		{"status without id", `{"type":"check-session-status"}`, ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"type":"run-command","provider":"stream","options":"nope"}`))
	assert.Error(t, err)
}

func TestActiveSessionsShape(t *testing.T) {
	data, err := json.Marshal(ActiveSessions{
		Type:     TypeActiveSessions,
		Sessions: map[Provider][]string{ProviderStream: {"a"}, ProviderProcess: {}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"active-sessions","sessions":{"stream":["a"],"process":[]}}`, string(data))
}
