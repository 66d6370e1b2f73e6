package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const iioDevicesPath = "/sys/bus/iio/devices"

// Environment reports ambient temperature, humidity, and pressure from a
// BME280-class sensor exposed through the Linux IIO subsystem. Devices
// without the sensor report an error payload slot each tick rather than
// being dropped from the reading.
type Environment struct {
	// DevicesPath overrides the IIO devices directory, for tests.
	DevicesPath string
}

func (Environment) Name() string { return "environment" }

func (e Environment) Read(ctx context.Context) (map[string]any, error) {
	root := e.DevicesPath
	if root == "" {
		root = iioDevicesPath
	}
	dev, err := findEnvironmentDevice(root)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	// in_temp_input is millidegrees; humidity and pressure channels are
	// already in %RH and kPa on bme280-class drivers.
	if v, err := readIIOChannel(dev, "in_temp_input"); err == nil {
		values["temperature_c"] = round2(v / 1000)
	}
	if v, err := readIIOChannel(dev, "in_humidityrelative_input"); err == nil {
		values["humidity_pct"] = round2(v)
	}
	if v, err := readIIOChannel(dev, "in_pressure_input"); err == nil {
		values["pressure_hpa"] = round2(v * 10)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("environment sensor %s exposes no readable channels", dev)
	}
	return values, nil
}

// findEnvironmentDevice picks the first IIO device with a temperature
// channel. Missing hardware is the normal case on most devices.
func findEnvironmentDevice(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("environment sensor not available: %w", err)
	}
	for _, entry := range entries {
		dev := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dev, "in_temp_input")); err == nil {
			return dev, nil
		}
	}
	return "", fmt.Errorf("environment sensor not available: no IIO device under %s", root)
}

func readIIOChannel(dev, channel string) (float64, error) {
	raw, err := os.ReadFile(filepath.Join(dev, channel))
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
}
