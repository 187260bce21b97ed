package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Observation is one file as seen on disk during a walk.
type Observation struct {
	Path       string
	Name       string
	Extension  string
	Dir        string
	Depth      int
	SizeBytes  int64
	Hash       string
	ModifiedAt time.Time
	AccessedAt *time.Time
	CreatedAt  *time.Time
}

// Stats accumulates walk totals. Per-path failures are counted, not fatal.
type Stats struct {
	Files       int64
	Directories int64
	TotalBytes  int64
	Errors      int
	ErrorSample []string
}

// Config tunes a single walk.
type Config struct {
	Root            string
	ExcludePatterns []string
	MaxDepth        int
	FollowSymlinks  bool
}

// Scanner walks a directory tree and emits content-hashed observations.
type Scanner struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a scanner for one root.
func New(cfg Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Root = strings.TrimRight(cfg.Root, "/")
	if cfg.Root == "" {
		cfg.Root = "/"
	}
	return &Scanner{cfg: cfg, logger: logger}
}

const errorSampleLimit = 20

// Walk visits every regular file under the root and calls yield with its
// observation. A yield error aborts the walk; filesystem errors are counted
// into the stats and skipped.
func (s *Scanner) Walk(ctx context.Context, yield func(Observation) error) (Stats, error) {
	stats := Stats{}
	rootDepth := pathDepth(s.cfg.Root)

	err := filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			stats.recordError(walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != s.cfg.Root && s.excluded(d.Name()) {
				return filepath.SkipDir
			}
			if s.cfg.MaxDepth > 0 && pathDepth(path)-rootDepth >= s.cfg.MaxDepth {
				return filepath.SkipDir
			}
			stats.Directories++
			return nil
		}
		if s.excluded(d.Name()) {
			return nil
		}
		if !d.Type().IsRegular() {
			if d.Type()&fs.ModeSymlink == 0 || !s.cfg.FollowSymlinks {
				return nil
			}
		}

		obs, err := s.observe(path)
		if err != nil {
			stats.recordError(err)
			return nil
		}

		stats.Files++
		stats.TotalBytes += obs.SizeBytes
		if err := yield(obs); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Scanner) observe(path string) (Observation, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Observation{}, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return Observation{}, err
	}

	name := filepath.Base(path)
	obs := Observation{
		Path:       path,
		Name:       name,
		Extension:  strings.ToLower(filepath.Ext(name)),
		Dir:        filepath.Dir(path),
		Depth:      pathDepth(path),
		SizeBytes:  info.Size(),
		Hash:       hash,
		ModifiedAt: info.ModTime().UTC(),
	}
	fillTimes(info, &obs)
	return obs, nil
}

func (s *Scanner) excluded(name string) bool {
	for _, pattern := range s.cfg.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if pattern == name {
			return true
		}
	}
	return false
}

func (st *Stats) recordError(err error) {
	st.Errors++
	if len(st.ErrorSample) < errorSampleLimit {
		st.ErrorSample = append(st.ErrorSample, err.Error())
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func pathDepth(path string) int {
	cleaned := strings.Trim(filepath.Clean(path), "/")
	if cleaned == "" || cleaned == "." {
		return 0
	}
	return strings.Count(cleaned, "/") + 1
}
