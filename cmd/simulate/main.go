// Command simulate drives one rider and one driver through a complete
// ride, either in process or against a running server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/semanticallynull/gocab-backend/client"
	"github.com/semanticallynull/gocab-backend/events"
	"github.com/semanticallynull/gocab-backend/internal/app"
	"github.com/semanticallynull/gocab-backend/internal/o11y"
	"github.com/semanticallynull/gocab-backend/ride"
	"github.com/semanticallynull/gocab-backend/user"
)

var cli = struct {
	ServerURL string `name:"server-url" env:"SERVER_URL" help:"Run against this server instead of an in-process stack."`
	LogLevel  string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`

	RiderEmail  string           `name:"rider-email" default:"alice@gocab.com"`
	DriverEmail string           `name:"driver-email" default:"bob@gocab.com"`
	Vehicle     ride.VehicleType `name:"vehicle" default:"UberX"`
	Pickup      string           `name:"pickup" default:"Times Square, NY"`
	Dropoff     string           `name:"dropoff" default:"Central Park, NY"`

	Latency    time.Duration `name:"latency" default:"400ms" help:"In-process router latency."`
	MatchDelay time.Duration `name:"match-delay" default:"3s" help:"In-process match delay."`
	Poll       time.Duration `name:"poll" default:"500ms" help:"How often the driver looks for requests."`
	Timeout    time.Duration `name:"timeout" default:"30s"`
}{}

func main() {
	if err := run(); err != nil {
		log.Fatalf("simulation failed: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	kong.Parse(&cli)

	obs, cleanup, err := o11y.Setup(ctx, o11y.Config{LogLevel: cli.LogLevel})
	defer cleanup()
	if err != nil {
		return err
	}
	logger := obs.Logger

	var d client.Dispatcher
	if cli.ServerURL != "" {
		d = client.NewHTTPDispatcher(cli.ServerURL, nil)
	} else {
		a, err := app.New(ctx, app.Config{
			Storage:    app.StorageMemory,
			Latency:    cli.Latency,
			MatchDelay: cli.MatchDelay,
		}, obs)
		if err != nil {
			return err
		}
		defer a.Close()
		d = a.API
	}

	bus := events.NewBus(logger)
	changes, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go func() {
		for c := range changes {
			logger.Info("change", "collection", c.Collection, "id", c.ID, "kind", c.Kind)
		}
	}()

	ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	rider := client.New(d, bus, logger.With("actor", "rider"))
	driver := client.New(d, bus, logger.With("actor", "driver"))
	return simulate(ctx, logger, rider, driver)
}

func simulate(ctx context.Context, logger *slog.Logger, rider, driver *client.Client) error {
	if _, err := rider.Login(ctx, cli.RiderEmail, user.RoleRider); err != nil {
		return fmt.Errorf("rider login: %w", err)
	}
	if _, err := driver.Login(ctx, cli.DriverEmail, user.RoleDriver); err != nil {
		return fmt.Errorf("driver login: %w", err)
	}
	if u, _ := driver.CurrentUser(); !u.Online() {
		if _, err := driver.ToggleOnline(ctx); err != nil {
			return err
		}
	}

	requested, err := rider.RequestRide(ctx,
		ride.Location{Address: cli.Pickup},
		ride.Location{Address: cli.Dropoff},
		cli.Vehicle,
	)
	if err != nil {
		return err
	}
	logger.Info("ride requested", "ride_id", requested.ID, "fare", requested.Fare, "distance", requested.Distance)

	offered, err := waitForOffer(ctx, driver, requested.ID)
	if err != nil {
		return err
	}

	accepted, err := driver.AcceptRide(ctx, offered.ID)
	if err != nil {
		return err
	}
	logger.Info("ride accepted", "ride_id", accepted.ID, "driver_id", accepted.DriverID)

	for _, status := range []ride.Status{ride.StatusArrived, ride.StatusInProgress, ride.StatusCompleted} {
		r, err := driver.UpdateRideStatus(ctx, accepted.ID, status)
		if err != nil {
			return err
		}
		logger.Info("ride status", "ride_id", r.ID, "status", r.Status)
	}
	return nil
}

func waitForOffer(ctx context.Context, driver *client.Client, rideID string) (ride.Ride, error) {
	ticker := time.NewTicker(cli.Poll)
	defer ticker.Stop()
	for {
		rides, err := driver.GetRides(ctx)
		if err != nil {
			return ride.Ride{}, err
		}
		for _, r := range ride.PendingRequests(rides) {
			if r.ID == rideID {
				return r, nil
			}
		}

		select {
		case <-ctx.Done():
			return ride.Ride{}, fmt.Errorf("waiting for ride %s to be offered: %w", rideID, ctx.Err())
		case <-ticker.C:
		}
	}
}
