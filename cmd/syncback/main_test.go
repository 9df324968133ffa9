package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-syncback/internal/model"
)

func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`database:
  path: %s
logging:
  level: error
accounts:
  - id: work
    email: me@example.com
    provider: imap
    imap_host: imap.example.com
`, filepath.Join(dir, "syncback.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: syncback")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown command")

	assert.Equal(t, 0, run([]string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "reconcile")
}

func TestLoginSummary(t *testing.T) {
	got := loginSummary(&model.Account{ID: "work", Provider: model.ProviderIMAP})
	assert.Contains(t, got, "password for work ")
	assert.NotContains(t, got, "workimap")
	assert.Contains(t, got, "imap")
}

func TestRun_EnqueueRequiresFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"enqueue", "--config", writeConfig(t), "--account", "work"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "--account and --message are required")
}

func TestRun_Enqueue(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{
		"enqueue",
		"--config", writeConfig(t),
		"--account", "work",
		"--message", "m-1",
		"--per-recipient",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "new")
}

func TestRun_ImportThenStatus(t *testing.T) {
	cfgPath := writeConfig(t)
	msgPath := filepath.Join(t.TempDir(), "msg.json")
	require.NoError(t, os.WriteFile(msgPath, []byte(`{
		"id": "m-42",
		"header_message_id": "<m42@x>",
		"subject": "Hi",
		"to": [{"email": "you@example.com"}],
		"body": "hello",
		"folders": [{"path": "Sent", "role": "sent"}],
		"labels": []
	}`), 0o600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"import", "-c", cfgPath, "-a", "work", "-f", msgPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "imported m-42")

	stdout.Reset()
	code = run([]string{"enqueue", "-c", cfgPath, "-a", "work", "-m", "m-42"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	fields := strings.Fields(stdout.String())
	require.Len(t, fields, 2)

	stdout.Reset()
	code = run([]string{"status", "-c", cfgPath, "-r", fields[1]}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "new")
	assert.Contains(t, stdout.String(), fields[1]+" attempts=0")
}

func TestRun_ReconcileUnknownMessage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{
		"reconcile",
		"--config", writeConfig(t),
		"-a", "work",
		"-m", "missing",
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "message missing not found")
}
