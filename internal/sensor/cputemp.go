package sensor

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// CPUTemp reports the SoC temperature in celsius and fahrenheit. It reads
// the sysfs thermal zone first and falls back to vcgencmd on Raspberry Pi
// images where the zone is absent.
type CPUTemp struct {
	// ZonePath overrides the sysfs source, for tests.
	ZonePath string
}

func (CPUTemp) Name() string { return "cpu_temp" }

func (c CPUTemp) Read(ctx context.Context) (map[string]any, error) {
	path := c.ZonePath
	if path == "" {
		path = thermalZonePath
	}
	if raw, err := os.ReadFile(path); err == nil {
		milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return tempValues(milli / 1000), nil
	}

	out, err := exec.CommandContext(ctx, "vcgencmd", "measure_temp").Output()
	if err != nil {
		return nil, fmt.Errorf("cpu temperature unavailable: %w", err)
	}
	celsius, err := parseVcgencmd(string(out))
	if err != nil {
		return nil, err
	}
	return tempValues(celsius), nil
}

// parseVcgencmd extracts degrees from output like "temp=48.3'C".
func parseVcgencmd(out string) (float64, error) {
	s := strings.TrimSpace(out)
	s = strings.TrimPrefix(s, "temp=")
	if i := strings.IndexAny(s, "'C"); i >= 0 {
		s = s[:i]
	}
	celsius, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse vcgencmd output %q: %w", strings.TrimSpace(out), err)
	}
	return celsius, nil
}

func tempValues(celsius float64) map[string]any {
	return map[string]any{
		"c": round2(celsius),
		"f": round2(celsius*1.8 + 32),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
