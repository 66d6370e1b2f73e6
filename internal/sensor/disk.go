package sensor

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

// DiskSpace reports total/used/free megabytes for the filesystem at Path.
type DiskSpace struct {
	Path string
}

func (DiskSpace) Name() string { return "disk_space" }

func (d DiskSpace) Read(ctx context.Context) (map[string]any, error) {
	path := d.Path
	if path == "" {
		path = "/"
	}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bavail * bsize
	return map[string]any{
		"total_mb": bytesToMB(total),
		"used_mb":  bytesToMB(total - free),
		"free_mb":  bytesToMB(free),
	}, nil
}

func bytesToMB(b uint64) float64 {
	return math.Round(float64(b)/(1024*1024)*100) / 100
}
