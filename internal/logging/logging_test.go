package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-syncback/internal/model"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john@example.com", "j**n@e*****e.c*m"},
		{"a@b.io", "*@*.io"},
		{"not-an-address", "not-an-address"},
		{"@example.com", "@example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskEmail(tt.in), "MaskEmail(%q)", tt.in)
	}
}

func TestNewLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(model.LoggingConfig{Level: "warn"}, &buf)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	acctLog := ForAccount(log, &model.Account{
		ID: "acct-1", Email: "me@example.com", Provider: model.ProviderGmail,
	})
	acctLog.Warn().Msg("kept")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "kept", event["message"])
	assert.Equal(t, "acct-1", event["account_id"])
	assert.Equal(t, "me@e*****e.c*m", event["account"])
	assert.Equal(t, "gmail", event["provider"])
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(model.LoggingConfig{Level: "chatty"}, &buf)

	log.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())
	log.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}
