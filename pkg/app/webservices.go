package app

import (
	"errors"
	"net/http"

	"mijiadl/pkg/lywsd03"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleData is the get last live reading web handler.
func (app *App) HandleData() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request data")

		app.reading.RLock()
		defer app.reading.RUnlock()

		return ctx.JSON(app.reading.data)
	}
}

// HandleHistory is the history harvest web handler.
// The range query parameter selects day (default), week or month.
func (app *App) HandleHistory() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request history")

		timeRange := lywsd03.Day
		if q := ctx.Query("range"); q != "" {
			var err error
			if timeRange, err = lywsd03.ParseTimeRange(q); err != nil {
				ctx.Status(http.StatusBadRequest)
				return ctx.JSON(fiber.Map{"error": err.Error()})
			}
		}

		h, err := app.harvest(timeRange)
		if err != nil {
			debug.ErrorLog.Printf("history harvest: %v", err)

			status := http.StatusBadGateway
			if errors.Is(err, lywsd03.ErrHarvestTimeout) {
				status = http.StatusGatewayTimeout
			}
			ctx.Status(status)
			return ctx.JSON(fiber.Map{"error": err.Error()})
		}

		return ctx.JSON(fiber.Map{
			"range":   timeRange.String(),
			"count":   h.Len(),
			"records": h.Records(),
		})
	}
}
