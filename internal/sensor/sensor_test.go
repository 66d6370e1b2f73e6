package sensor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// stubSensor returns fixed values, an error, or hangs until released.
type stubSensor struct {
	name   string
	values map[string]any
	err    error
	hang   bool
}

func (s stubSensor) Name() string { return s.name }

func (s stubSensor) Read(ctx context.Context) (map[string]any, error) {
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.values, s.err
}

func TestCollect_AssemblesAllSlots(t *testing.T) {
	sensors := []Sensor{
		stubSensor{name: "cpu_temp", values: map[string]any{"c": 42.0}},
		stubSensor{name: "disk_space", values: map[string]any{"free_mb": 100.0}},
	}
	payload := Collect(context.Background(), sensors, time.Second)

	if len(payload) != 2 {
		t.Fatalf("expected 2 payload slots, got %d", len(payload))
	}
	if payload["cpu_temp"]["c"] != 42.0 {
		t.Errorf("cpu_temp slot = %v", payload["cpu_temp"])
	}
}

func TestCollect_ErrorIsEmbeddedNotFatal(t *testing.T) {
	sensors := []Sensor{
		stubSensor{name: "cpu_temp", err: errors.New("i2c bus stuck")},
		stubSensor{name: "disk_space", values: map[string]any{"free_mb": 100.0}},
	}
	payload := Collect(context.Background(), sensors, time.Second)

	if payload["cpu_temp"]["error"] != "i2c bus stuck" {
		t.Errorf("expected embedded error, got %v", payload["cpu_temp"])
	}
	if payload["disk_space"]["free_mb"] != 100.0 {
		t.Errorf("healthy sensor slot lost: %v", payload["disk_space"])
	}
}

func TestCollect_HangingSensorTimesOutWithoutBlockingOthers(t *testing.T) {
	sensors := []Sensor{
		stubSensor{name: "stuck", hang: true},
		stubSensor{name: "disk_space", values: map[string]any{"free_mb": 100.0}},
	}

	start := time.Now()
	payload := Collect(context.Background(), sensors, 50*time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("collect blocked for %s on a hanging sensor", elapsed)
	}
	if _, ok := payload["stuck"]["error"]; !ok {
		t.Errorf("expected timeout error in stuck slot, got %v", payload["stuck"])
	}
	if payload["disk_space"]["free_mb"] != 100.0 {
		t.Errorf("healthy sensor slot lost: %v", payload["disk_space"])
	}
}

func TestCPUTemp_SysfsZone(t *testing.T) {
	zone := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(zone, []byte("48300\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	values, err := CPUTemp{ZonePath: zone}.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if values["c"] != 48.3 {
		t.Errorf("c = %v, want 48.3", values["c"])
	}
	if values["f"] != 118.94 {
		t.Errorf("f = %v, want 118.94", values["f"])
	}
}

func TestParseVcgencmd(t *testing.T) {
	c, err := parseVcgencmd("temp=48.3'C\n")
	if err != nil {
		t.Fatalf("parseVcgencmd failed: %v", err)
	}
	if c != 48.3 {
		t.Errorf("celsius = %v, want 48.3", c)
	}
	if _, err := parseVcgencmd("garbage"); err == nil {
		t.Error("expected error for malformed output")
	}
}

func TestMemory_ParsesMeminfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	content := "MemTotal:       1024000 kB\nMemFree:         200000 kB\nMemAvailable:    512000 kB\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	values, err := Memory{Path: path}.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if values["total_mb"] != 1000.0 {
		t.Errorf("total_mb = %v, want 1000", values["total_mb"])
	}
	if values["used_mb"] != 500.0 {
		t.Errorf("used_mb = %v, want 500", values["used_mb"])
	}
}

func TestEnvironment_ReadsIIOChannels(t *testing.T) {
	root := t.TempDir()
	dev := filepath.Join(root, "iio:device0")
	if err := os.Mkdir(dev, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"in_temp_input":             "21450\n",
		"in_humidityrelative_input": "43.271\n",
		"in_pressure_input":         "101.325\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dev, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	values, err := Environment{DevicesPath: root}.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if values["temperature_c"] != 21.45 {
		t.Errorf("temperature_c = %v, want 21.45", values["temperature_c"])
	}
	if values["humidity_pct"] != 43.27 {
		t.Errorf("humidity_pct = %v, want 43.27", values["humidity_pct"])
	}
	if values["pressure_hpa"] != 1013.25 {
		t.Errorf("pressure_hpa = %v, want 1013.25", values["pressure_hpa"])
	}
}

func TestEnvironment_MissingHardware(t *testing.T) {
	_, err := Environment{DevicesPath: t.TempDir()}.Read(context.Background())
	if err == nil {
		t.Fatal("expected error without IIO devices")
	}
	if !strings.Contains(err.Error(), "not available") {
		t.Errorf("err = %v", err)
	}
}

func TestDiskSpace_ReadsRealFilesystem(t *testing.T) {
	values, err := DiskSpace{Path: t.TempDir()}.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	total, ok := values["total_mb"].(float64)
	if !ok || total <= 0 {
		t.Errorf("total_mb = %v, want positive float", values["total_mb"])
	}
}
