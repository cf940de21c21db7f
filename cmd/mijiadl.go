package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"mijiadl/pkg/app"
	"mijiadl/pkg/app/config"
	"mijiadl/pkg/gatt"
	"mijiadl/pkg/lywsd03"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

const defaultConfigFile = "/opt/womat/config/" + app.MODULE + ".yaml"

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "Datalogger for the Xiaomi LYWSD03MMC temperature/humidity sensor",
		Version: app.VERSION,
		Description: "Read live measurements and hourly min/max history of the LYWSD03MMC sensor" +
			"\n over Bluetooth LE (GATT) and publish values to mqtt." +
			"\n The last reading and the harvested history are also served over a small web API.",
		UsageText: "mijiadl [--conf <file>] [--log error|debug|trace]" +
			"\n\nEXAMPLE:" +
			"\n\tstart the data logger and use the configuration file mijiadl.yaml" +
			"\n\t\tmijiadl --conf /opt/womat/mijiadl.yaml",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.LogLevel, Value: "standard", Usage: "`LEVEL` defines the log level (fatal|info|warning|error|debug|trace)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "scan for sensors and print their addresses",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Value: "LYWSD03MMC", Usage: "advertised device `NAME` to look for"},
					&cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "how long to scan"},
				},
				Action: scanSensors,
			},
			{
				Name:  "read",
				Usage: "read the sensor once and print the values",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Required: true, Usage: "`ADDRESS` of the sensor"},
					&cli.StringFlag{Name: "range", Usage: "also harvest the history of the given `RANGE` (day|week|month)"},
				},
				Action: readSensor,
			},
		},
		Action: func(ctx *cli.Context) error {
			if err := cfg.LoadConfig(); err != nil {
				return err
			}

			debug.SetDebug(cfg.Log.File, cfg.Log.Flag)
			defer func() {
				debug.InfoLog.Printf("closing log file %s", cfg.Log.FileString)
				_ = cfg.Log.File.Close()
			}()

			a, err := app.New(cfg)
			defer func() {
				debug.InfoLog.Printf("closing app %s", app.Version())
				_ = a.Close()
			}()

			if err != nil {
				return err
			}

			debug.InfoLog.Printf("starting app %s", app.Version())
			if err = a.Run(); err != nil {
				return err
			}

			// capture exit signals to ensure resources are released on exit.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			// wait for an os.Interrupt signal (CTRL C)
			sig := <-quit
			debug.InfoLog.Printf("Got %s signal. Aborting...", sig)

			return nil
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	err := cliApp.Run(os.Args)
	if err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
	return
}

// scanSensors prints the address of every sensor seen while scanning.
func scanSensors(ctx *cli.Context) error {
	debug.SetDebug(os.Stderr, debug.Standard)

	addrs, err := gatt.Scan(context.Background(), ctx.String("name"), ctx.Duration("duration"))
	if err != nil {
		return err
	}

	if len(addrs) == 0 {
		fmt.Printf("no %s found\n", ctx.String("name"))
		return nil
	}
	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return nil
}

// readSensor connects once, prints the device state and the live reading
// and optionally harvests the history.
func readSensor(ctx *cli.Context) error {
	debug.SetDebug(os.Stderr, debug.Standard)

	sensor := lywsd03.New(gatt.NewClient(ctx.String("addr")))
	if err := sensor.Connect(); err != nil {
		return err
	}
	defer func() { _ = sensor.Disconnect() }()

	units, err := sensor.Units()
	if err != nil {
		return err
	}
	deviceTime, err := sensor.Time()
	if err != nil {
		return err
	}
	battery, err := sensor.Battery()
	if err != nil {
		return err
	}
	data, err := sensor.Data()
	if err != nil {
		return err
	}

	fmt.Printf("Units:       %s\n", units)
	fmt.Printf("Time:        %s\n", deviceTime.Format("02/01/2006, 15:04:05"))
	fmt.Printf("Battery:     %d%%\n", battery)
	fmt.Printf("Temperature: %v°C\n", data.Temperature)
	fmt.Printf("Humidity:    %d%%\n", data.Humidity)

	if r := ctx.String("range"); r != "" {
		timeRange, err := lywsd03.ParseTimeRange(r)
		if err != nil {
			return err
		}

		history, err := sensor.History(timeRange)
		if err != nil {
			return err
		}
		fmt.Print(history)
	}

	return nil
}
