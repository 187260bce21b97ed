package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccumulatorConsumesStatsAndErrors(t *testing.T) {
	acc := &accumulator{}
	acc.consume(`{"level":"info","msg":"Copied (new)","time":"2026-07-01T02:00:01Z"}`)
	acc.consume(`{"level":"info","msg":"stats","stats":{"bytes":1024,"transfers":2,"checks":5,"deletes":1,"speed":2097152}}`)
	acc.consume(`{"level":"error","msg":"failed to copy: permission denied"}`)
	acc.consume(`{"level":"info","msg":"stats","stats":{"bytes":4096,"transfers":7,"checks":9,"deletes":1,"speed":1048576}}`)

	require.Equal(t, int64(7), acc.filesTransferred)
	require.Equal(t, int64(9), acc.filesChecked)
	require.Equal(t, int64(1), acc.filesDeleted)
	require.Equal(t, int64(4096), acc.bytesTransferred)
	require.InDelta(t, 1.0, acc.rateMbps(), 0.0001)
	require.Equal(t, 1, acc.errorCount)
	require.Contains(t, acc.errorSample[0], "permission denied")
}

func TestAccumulatorToleratesGarbledLines(t *testing.T) {
	acc := &accumulator{}
	acc.consume("not json at all")
	acc.consume("")
	acc.consume(`{"level":"info","msg":"ok"}`)
	acc.consume("{truncated")

	require.Equal(t, 2, acc.errorCount)
	require.Len(t, acc.errorSample, 2)
	require.Contains(t, acc.errorSample[0], "unparseable engine output")
}

func TestEngineCommandShape(t *testing.T) {
	e := NewEngine(Options{Binary: "rclone", Transfers: 2, Checkers: 3, StatsInterval: 30 * time.Second, DryRun: true, ExtraFlags: []string{"--fast-list"}}, nil)
	args := e.Command("/data/docs", "remote:docs")

	require.Equal(t, []string{
		"rclone", "sync", "/data/docs", "remote:docs",
		"--use-json-log",
		"--log-level", "INFO",
		"--stats", "30s",
		"--stats-log-level", "INFO",
		"--transfers", "2",
		"--checkers", "3",
		"--dry-run",
		"--fast-list",
	}, args)
}

// writeFakeEngine produces a shell script standing in for the engine binary
// so subprocess handling can be exercised hermetically.
func writeFakeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestEngineSyncSuccess(t *testing.T) {
	bin := writeFakeEngine(t, `
echo '{"level":"info","msg":"stats","stats":{"bytes":2048,"transfers":3,"checks":4,"deletes":0,"speed":1048576}}' >&2
exit 0
`)
	e := NewEngine(Options{Binary: bin}, nil)

	result, err := e.Sync(context.Background(), "/src", "/dst")
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.Equal(t, int64(3), result.FilesTransferred)
	require.Equal(t, int64(2048), result.BytesTransferred)
	require.Zero(t, result.ErrorCount)
}

func TestEngineSyncFailureKeepsPartialStats(t *testing.T) {
	bin := writeFakeEngine(t, `
echo '{"level":"info","msg":"stats","stats":{"bytes":100,"transfers":1,"checks":1,"deletes":0,"speed":0}}' >&2
echo '{"level":"error","msg":"directory not found"}' >&2
exit 3
`)
	e := NewEngine(Options{Binary: bin}, nil)

	result, err := e.Sync(context.Background(), "/src", "/dst")
	require.NoError(t, err)
	require.False(t, result.Succeeded())
	require.Equal(t, 3, result.ExitCode)
	require.Equal(t, int64(1), result.FilesTransferred)
	require.Equal(t, 1, result.ErrorCount)
	require.Contains(t, result.Stderr, "directory not found")
}

func TestEngineSyncCancellation(t *testing.T) {
	bin := writeFakeEngine(t, `
echo '{"level":"info","msg":"started"}' >&2
exec sleep 10
`)
	e := NewEngine(Options{Binary: bin}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	result, err := e.Sync(ctx, "/src", "/dst")
	require.NoError(t, err)
	require.True(t, result.Cancelled)
	require.False(t, result.Succeeded())
}

func TestEngineSyncMissingBinary(t *testing.T) {
	e := NewEngine(Options{Binary: filepath.Join(t.TempDir(), "missing")}, nil)
	_, err := e.Sync(context.Background(), "/src", "/dst")
	require.Error(t, err)
}
