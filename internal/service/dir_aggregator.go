package service

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arkivo-io/arkivo/internal/models"
	"github.com/arkivo-io/arkivo/internal/scanner"
)

// dirAggregator folds per-file observations into per-directory rollups for
// the scanned subtree. Subtree totals propagate to every ancestor up to the
// scan root; direct counts stay with the containing directory.
type dirAggregator struct {
	root string
	dirs map[string]*dirBucket
}

type dirBucket struct {
	directFiles int64
	totalFiles  int64
	totalSize   int64
	fileTypes   map[string]int64
	children    map[string]struct{}

	largestID   string
	largestSize int64
	oldestID    string
	oldestMod   time.Time
	newestID    string
	newestMod   time.Time
}

func newDirAggregator(root string) *dirAggregator {
	return &dirAggregator{
		root: strings.TrimRight(root, "/"),
		dirs: map[string]*dirBucket{},
	}
}

func (a *dirAggregator) bucket(dir string) *dirBucket {
	b, ok := a.dirs[dir]
	if !ok {
		b = &dirBucket{fileTypes: map[string]int64{}, children: map[string]struct{}{}}
		a.dirs[dir] = b
	}
	return b
}

// add records one observed file against its directory and every ancestor
// inside the scan root.
func (a *dirAggregator) add(obs scanner.Observation, fileID string) {
	ext := obs.Extension
	if ext == "" {
		ext = "(none)"
	}

	dir := obs.Dir
	prev := ""
	for {
		b := a.bucket(dir)
		b.totalFiles++
		b.totalSize += obs.SizeBytes
		b.fileTypes[ext]++
		if prev != "" {
			b.children[prev] = struct{}{}
		}
		if dir == obs.Dir {
			b.directFiles++
			if obs.SizeBytes >= b.largestSize || b.largestID == "" {
				b.largestID = fileID
				b.largestSize = obs.SizeBytes
			}
			if b.oldestID == "" || obs.ModifiedAt.Before(b.oldestMod) {
				b.oldestID = fileID
				b.oldestMod = obs.ModifiedAt
			}
			if b.newestID == "" || obs.ModifiedAt.After(b.newestMod) {
				b.newestID = fileID
				b.newestMod = obs.ModifiedAt
			}
		}
		if dir == a.root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir || !strings.HasPrefix(parent, a.root) {
			break
		}
		prev = dir
		dir = parent
	}
}

// entries materializes the rollups in deterministic path order.
func (a *dirAggregator) entries(scanTime time.Time) []models.DirectoryEntry {
	paths := make([]string, 0, len(a.dirs))
	for dir := range a.dirs {
		paths = append(paths, dir)
	}
	sort.Strings(paths)

	out := make([]models.DirectoryEntry, 0, len(paths))
	for _, dir := range paths {
		b := a.dirs[dir]
		entry := models.DirectoryEntry{
			DirPath:           dir,
			DirName:           filepath.Base(dir),
			Depth:             strings.Count(strings.TrimPrefix(dir, a.root), "/"),
			TotalFiles:        b.totalFiles,
			DirectFiles:       b.directFiles,
			TotalSizeBytes:    b.totalSize,
			SubdirectoryCount: len(b.children),
			FileTypes:         models.FileTypeCounts(b.fileTypes),
			LastScanAt:        scanTime,
		}
		if b.largestID != "" {
			id := b.largestID
			entry.LargestFileID = &id
		}
		if b.oldestID != "" {
			id := b.oldestID
			entry.OldestFileID = &id
		}
		if b.newestID != "" {
			id := b.newestID
			entry.NewestFileID = &id
		}
		out = append(out, entry)
	}
	return out
}
