package retention

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Gauge reports utilization of the storage backing the reading store, as a
// percentage in [0, 100].
type Gauge interface {
	Utilization() (float64, error)
}

// DiskGauge measures the filesystem containing path via statfs.
type DiskGauge struct {
	Path string
}

// NewDiskGauge returns a gauge for the filesystem containing path.
func NewDiskGauge(path string) DiskGauge {
	return DiskGauge{Path: path}
}

// Utilization returns used/total for the filesystem, using the blocks
// available to unprivileged users as the free figure (matches what df
// reports and what actually stops writes).
func (g DiskGauge) Utilization() (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(g.Path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", g.Path, err)
	}
	total := st.Blocks * uint64(st.Bsize)
	if total == 0 {
		return 0, fmt.Errorf("statfs %s: zero-size filesystem", g.Path)
	}
	avail := st.Bavail * uint64(st.Bsize)
	used := total - avail
	return float64(used) / float64(total) * 100, nil
}
