//go:build !linux

package scanner

import "os"

// fillTimes leaves access and creation times unset where the platform stat
// structure does not expose them portably.
func fillTimes(_ os.FileInfo, _ *Observation) {}
