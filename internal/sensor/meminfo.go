package sensor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const meminfoPath = "/proc/meminfo"

// Memory reports total/available/used megabytes from /proc/meminfo.
type Memory struct {
	// Path overrides the meminfo source, for tests.
	Path string
}

func (Memory) Name() string { return "memory" }

func (m Memory) Read(ctx context.Context) (map[string]any, error) {
	path := m.Path
	if path == "" {
		path = meminfoPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var totalKB, availKB float64
	found := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && found < 2 {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = kb
			found++
		case "MemAvailable:":
			availKB = kb
			found++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if found < 2 {
		return nil, fmt.Errorf("%s missing MemTotal/MemAvailable", path)
	}
	return map[string]any{
		"total_mb":     round2(totalKB / 1024),
		"available_mb": round2(availKB / 1024),
		"used_mb":      round2((totalKB - availKB) / 1024),
	}, nil
}
