package app

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"mijiadl/pkg/app/config"
	"mijiadl/pkg/gatt"
	"mijiadl/pkg/lywsd03"
	"mijiadl/pkg/mqtt"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Webserver.URL parameter
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// sensor is the LYWSD03MMC client, created in init once the device
	// address is known
	sensor *lywsd03.Client

	// sensorMu serializes sensor operations, the client supports one
	// logical flow at a time
	sensorMu sync.Mutex

	// reading is the last live reading
	reading struct {
		sync.RWMutex
		data lywsd03.SensorData
	}

	// published is the last reading sent to the mqtt broker
	published struct {
		sync.Mutex
		data lywsd03.SensorData
	}

	// restart signals application restart
	restart chan struct{}
	// shutdown signals application shutdown
	shutdown chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	return &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(),
		mqtt: mqtt.New(),

		restart:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}, err
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()
	go app.service()

	return nil
}

// init resolves the device address, connects the sensor and the mqtt
// broker and applies the startup device configuration.
func (app *App) init() error {
	addr := app.config.Device.MAC
	if addr == "" {
		debug.InfoLog.Printf("no device address configured, scanning for %q", app.config.Device.Name)

		addrs, err := gatt.Scan(context.Background(), app.config.Device.Name, 10*time.Second)
		if err != nil {
			debug.ErrorLog.Printf("can't scan for devices: %v", err)
			return err
		}
		if len(addrs) == 0 {
			return fmt.Errorf("no %s found", app.config.Device.Name)
		}
		addr = addrs[0]
	}

	app.sensor = lywsd03.New(gatt.NewClient(addr))
	app.sensor.Retries = app.config.Device.Retries
	app.sensor.ConnectTimeout = app.config.Device.ConnectTimeout
	app.sensor.HarvestTimeout = app.config.Device.HarvestTimeout

	if err := app.sensor.Connect(); err != nil {
		debug.ErrorLog.Printf("can't connect to sensor %s: %v", addr, err)
		return err
	}

	if app.config.Device.SyncTime {
		if err := app.sensor.SetTime(time.Now()); err != nil {
			debug.ErrorLog.Printf("can't sync device time: %v", err)
			return err
		}
		debug.InfoLog.Print("device time synchronized")
	}

	if u := app.config.Device.Units; u != "" {
		if err := app.sensor.SetUnits(u); err != nil {
			debug.ErrorLog.Printf("can't set display units: %v", err)
			return err
		}
	}

	if err := app.mqtt.Connect(app.config.MQTT.Connection, app.config.MQTT.ClientID); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	// initDefaultRoutes should always be called last because it may
	// access things which must be initialized before
	app.initDefaultRoutes()

	return nil
}

// Restart returns the read only restart channel.
// Restart is used to be able to react on application restart. (see cmd/mijiadl.go)
func (app *App) Restart() <-chan struct{} {
	return app.restart
}

// Shutdown returns the read only shutdown channel.
// Shutdown is used to be able to react on application shutdown. (see cmd/mijiadl.go)
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

func (app *App) Close() error {
	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}

	if app.sensor != nil {
		_ = app.sensor.Disconnect()
	}
	return nil
}
