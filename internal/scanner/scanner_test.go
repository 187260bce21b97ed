package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScannerWalkEmitsHashedObservations(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	writeFile(t, root, "sub/b.log", "world")

	s := New(Config{Root: root}, nil)
	var seen []Observation
	stats, err := s.Walk(context.Background(), func(obs Observation) error {
		seen = append(seen, obs)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Files)
	require.Equal(t, int64(5+5), stats.TotalBytes)
	require.Zero(t, stats.Errors)

	byName := map[string]Observation{}
	for _, obs := range seen {
		byName[obs.Name] = obs
	}
	want := sha256.Sum256([]byte("hello"))
	require.Equal(t, hex.EncodeToString(want[:]), byName["a.txt"].Hash)
	require.Equal(t, ".log", byName["b.log"].Extension)
	require.Equal(t, filepath.Join(root, "sub"), byName["b.log"].Dir)
}

func TestScannerWalkHonorsExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "keep")
	writeFile(t, root, ".git/config", "ignored")
	writeFile(t, root, "trace.tmp", "ignored")

	s := New(Config{Root: root, ExcludePatterns: []string{".git", "*.tmp"}}, nil)
	var names []string
	_, err := s.Walk(context.Background(), func(obs Observation) error {
		names = append(names, obs.Name)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"keep.txt"}, names)
}

func TestScannerWalkStopsOnYieldError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")

	s := New(Config{Root: root}, nil)
	calls := 0
	_, err := s.Walk(context.Background(), func(Observation) error {
		calls++
		return os.ErrClosed
	})
	require.ErrorIs(t, err, os.ErrClosed)
	require.Equal(t, 1, calls)
}

func TestScannerWalkCancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Config{Root: root}, nil)
	_, err := s.Walk(ctx, func(Observation) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
