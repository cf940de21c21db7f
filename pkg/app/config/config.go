package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config holds the application configuration.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Flag      FlagConfig      `yaml:"-"`
	Log       LogConfig       `yaml:"log"`
	Webserver WebserverConfig `yaml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	LogLevel   string
	ConfigFile string
}

// DeviceConfig defines the struct of the sensor configuration and configuration file
type DeviceConfig struct {
	// MAC is the address of the sensor. With an empty MAC the sensor is
	// searched by Name on startup.
	MAC  string `yaml:"mac"`
	Name string `yaml:"name"`

	Retries           int           `yaml:"retries"`
	ConnectTimeout    time.Duration `yaml:"-"`
	ConnectTimeoutInt int           `yaml:"connecttimeout"`
	HarvestTimeout    time.Duration `yaml:"-"`
	HarvestTimeoutInt int           `yaml:"harvesttimeout"`
	Interval          time.Duration `yaml:"-"`
	IntervalInt       int           `yaml:"interval"`

	// SyncTime writes the host time to the device clock on startup.
	SyncTime bool `yaml:"synctime"`
	// Units sets the display unit on startup ("C" or "F", empty keeps it).
	Units string `yaml:"units"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection  string        `yaml:"connection"`
	ClientID    string        `yaml:"clientid"`
	Interval    time.Duration `yaml:"-"`
	IntervalInt int           `yaml:"interval"`
	Topic       string        `yaml:"topic"`
	DeltaKelvin float64       `yaml:"deltakelvin"`
}

// LogConfig defines the struct of the log configuration and configuration file
type LogConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:              "LYWSD03MMC",
			Retries:           5,
			ConnectTimeoutInt: 20,
			HarvestTimeoutInt: 120,
			IntervalInt:       60,
			Units:             "",
		},
		Flag: FlagConfig{},
		Log: LogConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"data":    true,
				"history": true,
			},
		},
		MQTT: MQTTConfig{
			Connection:  "",
			ClientID:    "mijiadl",
			IntervalInt: 300,
			Topic:       "/home/lywsd03mmc",
			DeltaKelvin: 0.5,
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.LogLevel != "" {
		c.Log.FlagString = c.Flag.LogLevel
	}
	if err := c.setLogConfig(); err != nil {
		return fmt.Errorf("unable to open log file %q: %w", c.Log.FileString, err)
	}

	c.Device.ConnectTimeout = time.Duration(c.Device.ConnectTimeoutInt) * time.Second
	c.Device.HarvestTimeout = time.Duration(c.Device.HarvestTimeoutInt) * time.Second
	c.Device.Interval = time.Duration(c.Device.IntervalInt) * time.Second
	c.MQTT.Interval = time.Duration(c.MQTT.IntervalInt) * time.Second

	return nil
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

func (c *Config) setLogConfig() (err error) {
	switch c.Log.FlagString {
	case "trace", "full":
		c.Log.Flag = debug.Full
	case "debug":
		c.Log.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Log.Flag = debug.Standard
	}

	switch c.Log.FileString {
	case "stderr":
		c.Log.File = os.Stderr
	case "stdout":
		c.Log.File = os.Stdout
	default:
		if c.Log.File, err = os.OpenFile(c.Log.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
