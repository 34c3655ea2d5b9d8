package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, now time.Time, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := newParser(&cli, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	var out bytes.Buffer
	err = kctx.Run(&Context{Out: &out, Now: func() time.Time { return now }})
	return out.String(), err
}

func TestStopTypesCmd(t *testing.T) {
	out, err := runCLI(t, time.Now(), "stop-types")
	require.NoError(t, err)
	assert.Contains(t, out, "regular")
	assert.Contains(t, out, "drop-hook")
	assert.Contains(t, out, "30m before")
	assert.Contains(t, out, "rate: $1.25/min")
}

func TestEvaluateCmd(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 45, 0, 0, time.UTC)
	out, err := runCLI(t, now, "evaluate", "2024-03-04T09:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "status:  warning")
	assert.Contains(t, out, "starts:  2024-03-04T11:00:00Z")

	out, err = runCLI(t, now, "evaluate", "2024-03-04T09:00:00Z", "-t", "rail", "--json")
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "detention", snap["status"])
	assert.EqualValues(t, 45, snap["detentionMinutes"])

	_, err = runCLI(t, now, "evaluate", "yesterday")
	assert.Error(t, err)
	_, err = runCLI(t, now, "evaluate", "2024-03-04T09:00:00Z", "-t", "barge")
	assert.Error(t, err)
}

func TestFinalCmd(t *testing.T) {
	out, err := runCLI(t, time.Now(), "final", "2024-03-04T09:00:00Z", "2024-03-04T11:47:00Z")
	require.NoError(t, err)
	assert.Equal(t, "47m $58.75\n", out)

	out, err = runCLI(t, time.Now(), "final", "2024-03-04T09:00:00Z", "2024-03-04T09:20:00Z", "-t", "drop-hook")
	require.NoError(t, err)
	assert.Equal(t, "0m $0.00\n", out)

	_, err = runCLI(t, time.Now(), "final", "2024-03-04T09:00:00Z", "2024-03-04T08:00:00Z")
	assert.Error(t, err)
}
