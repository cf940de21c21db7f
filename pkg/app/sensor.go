package app

import (
	"encoding/json"
	"math"
	"time"

	"mijiadl/pkg/lywsd03"
	"mijiadl/pkg/mqtt"

	"github.com/womat/debug"
)

// service reads live measurements in an endless loop.
// Each reading is saved to the app main structure and forwarded to the
// mqtt broker when the publishing condition is met.
func (app *App) service() {
	for {
		d, err := app.readSensor()
		if err != nil {
			debug.ErrorLog.Println(err)
			time.Sleep(time.Second)
			continue
		}

		debug.DebugLog.Printf("reading: %v", d)
		app.reading.Lock()
		app.reading.data = d
		app.reading.Unlock()

		app.validateMeasurement(d)

		time.Sleep(app.config.Device.Interval)
	}
}

// readSensor takes one live reading, reconnecting first if the link dropped.
func (app *App) readSensor() (lywsd03.SensorData, error) {
	app.sensorMu.Lock()
	defer app.sensorMu.Unlock()

	if !app.sensor.Connected() {
		if err := app.sensor.Connect(); err != nil {
			return lywsd03.SensorData{}, err
		}
	}

	return app.sensor.Data()
}

// harvest runs one history harvest for the requested range.
func (app *App) harvest(timeRange lywsd03.TimeRange) (*lywsd03.History, error) {
	app.sensorMu.Lock()
	defer app.sensorMu.Unlock()

	if !app.sensor.Connected() {
		if err := app.sensor.Connect(); err != nil {
			return nil, err
		}
	}

	return app.sensor.History(timeRange)
}

// validateMeasurement checks the reading against the last published one
// and sends it to mqtt when the publishing interval or the temperature
// delta is exceeded.
func (app *App) validateMeasurement(d lywsd03.SensorData) {
	app.published.Lock()
	defer app.published.Unlock()

	last := app.published.data
	deltaT := d.Time.Sub(last.Time)
	deltaK := math.Abs(d.Temperature - last.Temperature)

	if !last.Time.IsZero() && deltaT < app.config.MQTT.Interval && deltaK < app.config.MQTT.DeltaKelvin {
		return
	}

	app.sendMQTT(app.config.MQTT.Topic, d)
	app.published.data = d
}

// sendMQTT send message struct to the mqtt broker.
func (app *App) sendMQTT(topic string, message interface{}) {
	go func(t string, r interface{}) {
		debug.TraceLog.Printf("prepare mqtt message %v %v", t, r)

		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			debug.ErrorLog.Printf("sendMQTT marshal: %v", err)
			return
		}

		app.mqtt.C <- mqtt.Message{
			Qos:      0,
			Retained: true,
			Topic:    t,
			Payload:  b,
		}
	}(topic, message)
}
