// Package client is the façade UI code talks to. It keeps the signed-in
// user in a Session, sends requests through a Dispatcher and publishes a
// Change after every successful mutation.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/semanticallynull/gocab-backend/api"
	"github.com/semanticallynull/gocab-backend/events"
	"github.com/semanticallynull/gocab-backend/ride"
	"github.com/semanticallynull/gocab-backend/user"
)

// SessionCollection is the Change collection used for login, logout and
// online toggles.
const SessionCollection = "session"

var (
	ErrNoSession    = errors.New("no user signed in")
	ErrUnauthorized = errors.New("invalid credentials")
)

// Dispatcher sends one request and returns its envelope. *api.API serves
// requests in process; HTTPDispatcher sends them to a running server.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, path string, payload any) (api.Envelope, error)
}

type Client struct {
	d       Dispatcher
	session *Session
	events  events.Publisher
	logger  *slog.Logger
}

// New returns a Client with an empty session. pub may be nil.
func New(d Dispatcher, pub events.Publisher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		d:       d,
		session: &Session{},
		events:  pub,
		logger:  logger,
	}
}

func (c *Client) Session() *Session {
	return c.session
}

// Login signs in the first user with the given email and role. A failed
// login leaves the session untouched and publishes nothing.
func (c *Client) Login(ctx context.Context, email string, role user.Role) (user.User, error) {
	env, err := c.d.Dispatch(ctx, http.MethodPost, "/api/login", map[string]any{
		"email": email,
		"role":  role,
	})
	if err != nil {
		return user.User{}, fmt.Errorf("login: %w", err)
	}
	if env.StatusCode == http.StatusUnauthorized {
		return user.User{}, ErrUnauthorized
	}
	if err := env.Err(); err != nil {
		return user.User{}, fmt.Errorf("login: %w", err)
	}

	var resp api.LoginResponse
	if err := env.Decode(&resp); err != nil {
		return user.User{}, fmt.Errorf("login: %w", err)
	}

	c.session.set(&resp.User)
	c.notify(SessionCollection, resp.User.ID, events.KindSession)
	c.logger.InfoContext(ctx, "signed in", "user_id", resp.User.ID, "role", resp.User.Role)
	return resp.User, nil
}

func (c *Client) Logout() {
	c.session.set(nil)
	c.notify(SessionCollection, "", events.KindSession)
}

func (c *Client) CurrentUser() (user.User, bool) {
	return c.session.User()
}

// RequestRide asks for a ride for the signed-in user. The ride comes back
// searching; the match happens later and is only visible by reading again.
func (c *Client) RequestRide(ctx context.Context, pickup, dropoff ride.Location, vehicleType ride.VehicleType) (ride.Ride, error) {
	u, ok := c.session.User()
	if !ok {
		return ride.Ride{}, ErrNoSession
	}

	env, err := c.d.Dispatch(ctx, http.MethodPost, "/api/rides", map[string]any{
		"riderId":     u.ID,
		"pickup":      pickup,
		"dropoff":     dropoff,
		"vehicleType": vehicleType,
	})
	r, err := decodeRide(env, err)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("request ride: %w", err)
	}

	c.notify(ride.Collection, r.ID, events.KindCreated)
	return r, nil
}

// GetRides returns every ride. On any failure it returns an empty, non-nil
// slice along with the error.
func (c *Client) GetRides(ctx context.Context) ([]ride.Ride, error) {
	rides := []ride.Ride{}

	env, err := c.d.Dispatch(ctx, http.MethodGet, "/api/rides", nil)
	if err != nil {
		return rides, fmt.Errorf("get rides: %w", err)
	}
	if err := env.Err(); err != nil {
		return rides, fmt.Errorf("get rides: %w", err)
	}
	if err := env.Decode(&rides); err != nil {
		return []ride.Ride{}, fmt.Errorf("get rides: %w", err)
	}
	return rides, nil
}

// AcceptRide assigns the signed-in driver and moves the ride to accepted
// in a single update.
func (c *Client) AcceptRide(ctx context.Context, rideID string) (ride.Ride, error) {
	u, ok := c.session.User()
	if !ok {
		return ride.Ride{}, ErrNoSession
	}

	status := ride.StatusAccepted
	return c.updateRide(ctx, rideID, ride.Update{Status: &status, DriverID: &u.ID})
}

func (c *Client) UpdateRideStatus(ctx context.Context, rideID string, status ride.Status) (ride.Ride, error) {
	return c.updateRide(ctx, rideID, ride.Update{Status: &status})
}

func (c *Client) CancelRide(ctx context.Context, rideID string) (ride.Ride, error) {
	env, err := c.d.Dispatch(ctx, http.MethodPost, "/api/rides/"+rideID+"/cancel", nil)
	r, err := decodeRide(env, err)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("cancel ride %s: %w", rideID, err)
	}

	c.notify(ride.Collection, r.ID, events.KindUpdated)
	return r, nil
}

// ToggleOnline flips the signed-in user's online flag and replaces the
// session user with the server's copy.
func (c *Client) ToggleOnline(ctx context.Context) (user.User, error) {
	u, ok := c.session.User()
	if !ok {
		return user.User{}, ErrNoSession
	}

	env, err := c.d.Dispatch(ctx, http.MethodPost, "/api/user/online", map[string]any{
		"id":       u.ID,
		"isOnline": !u.Online(),
	})
	if err != nil {
		return user.User{}, fmt.Errorf("toggle online: %w", err)
	}
	if err := env.Err(); err != nil {
		return user.User{}, fmt.Errorf("toggle online: %w", err)
	}
	var updated user.User
	if err := env.Decode(&updated); err != nil {
		return user.User{}, fmt.Errorf("toggle online: %w", err)
	}

	c.session.set(&updated)
	c.notify(SessionCollection, updated.ID, events.KindSession)
	return updated, nil
}

func (c *Client) updateRide(ctx context.Context, rideID string, u ride.Update) (ride.Ride, error) {
	env, err := c.d.Dispatch(ctx, http.MethodPatch, "/api/rides/"+rideID, u)
	r, err := decodeRide(env, err)
	if err != nil {
		return ride.Ride{}, fmt.Errorf("update ride %s: %w", rideID, err)
	}

	c.notify(ride.Collection, r.ID, events.KindUpdated)
	return r, nil
}

func decodeRide(env api.Envelope, err error) (ride.Ride, error) {
	if err != nil {
		return ride.Ride{}, err
	}
	if err := env.Err(); err != nil {
		return ride.Ride{}, err
	}
	var r ride.Ride
	if err := env.Decode(&r); err != nil {
		return ride.Ride{}, err
	}
	return r, nil
}

func (c *Client) notify(collection, id string, kind events.Kind) {
	if c.events == nil {
		return
	}
	c.events.Publish(events.Change{Collection: collection, ID: id, Kind: kind})
}
