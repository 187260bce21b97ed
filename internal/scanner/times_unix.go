//go:build linux

package scanner

import (
	"os"
	"syscall"
	"time"
)

// fillTimes extracts access and creation times from the platform stat data.
func fillTimes(info os.FileInfo, obs *Observation) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	atime := time.Unix(stat.Atim.Sec, stat.Atim.Nsec).UTC()
	ctime := time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec).UTC()
	obs.AccessedAt = &atime
	obs.CreatedAt = &ctime
}
