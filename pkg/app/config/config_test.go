package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConfig = `
device:
  mac: "A4:C1:38:01:02:03"
  retries: 3
  connecttimeout: 10
  harvesttimeout: 90
  interval: 30
  synctime: true
  units: C
log:
  flag: debug
  file: stderr
webserver:
  url: http://0.0.0.0:7844
  webservices:
    version: true
    data: true
mqtt:
  connection: tcp://127.0.0.1:1883
  clientid: mijiadl-test
  interval: 120
  topic: /test/lywsd03mmc
  deltakelvin: 1.5
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	file := filepath.Join(t.TempDir(), "mijiadl.yaml")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return file
}

func TestLoadConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.Flag.ConfigFile = writeConfigFile(t, testConfig)

	if err := cfg.LoadConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Device.MAC != "A4:C1:38:01:02:03" {
		t.Errorf("expected device mac 'A4:C1:38:01:02:03', got %q", cfg.Device.MAC)
	}
	if cfg.Device.Retries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Device.Retries)
	}
	if cfg.Device.ConnectTimeout != 10*time.Second {
		t.Errorf("expected connect timeout 10s, got %v", cfg.Device.ConnectTimeout)
	}
	if cfg.Device.HarvestTimeout != 90*time.Second {
		t.Errorf("expected harvest timeout 90s, got %v", cfg.Device.HarvestTimeout)
	}
	if cfg.Device.Interval != 30*time.Second {
		t.Errorf("expected poll interval 30s, got %v", cfg.Device.Interval)
	}
	if !cfg.Device.SyncTime {
		t.Error("expected synctime true")
	}
	if cfg.MQTT.Interval != 120*time.Second {
		t.Errorf("expected mqtt interval 120s, got %v", cfg.MQTT.Interval)
	}
	if cfg.MQTT.DeltaKelvin != 1.5 {
		t.Errorf("expected delta kelvin 1.5, got %v", cfg.MQTT.DeltaKelvin)
	}
	if cfg.Webserver.URL != "http://0.0.0.0:7844" {
		t.Errorf("expected webserver url 'http://0.0.0.0:7844', got %q", cfg.Webserver.URL)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	cfg.Flag.ConfigFile = writeConfigFile(t, "device:\n  mac: \"A4:C1:38:01:02:03\"\n")

	if err := cfg.LoadConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Device.Name != "LYWSD03MMC" {
		t.Errorf("expected default device name 'LYWSD03MMC', got %q", cfg.Device.Name)
	}
	if cfg.Device.Retries != 5 {
		t.Errorf("expected default 5 retries, got %d", cfg.Device.Retries)
	}
	if cfg.Device.ConnectTimeout != 20*time.Second {
		t.Errorf("expected default connect timeout 20s, got %v", cfg.Device.ConnectTimeout)
	}
	if cfg.Device.HarvestTimeout != 120*time.Second {
		t.Errorf("expected default harvest timeout 120s, got %v", cfg.Device.HarvestTimeout)
	}
	if !cfg.Webserver.Webservices["history"] {
		t.Error("expected history webservice enabled by default")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg := NewConfig()
	cfg.Flag.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")

	if err := cfg.LoadConfig(); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
