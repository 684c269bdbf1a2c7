package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/gocab-backend/internal/middleware"
	"github.com/semanticallynull/gocab-backend/ride"
)

func (a *API) ridesHandler(c *gin.Context) {
	rides, err := a.rs.ListRides(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).Error("Failed to list rides", "error", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if rides == nil {
		rides = []ride.Ride{}
	}
	respond(c, http.StatusOK, rides)
}

type createRideRequest struct {
	RiderID     string           `json:"riderId" binding:"required"`
	Pickup      ride.Location    `json:"pickup"`
	Dropoff     ride.Location    `json:"dropoff"`
	VehicleType ride.VehicleType `json:"vehicleType"`
}

func (a *API) createRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind ride request", "error", err)
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	r, err := a.rs.CreateRide(c.Request.Context(), req.RiderID, req.Pickup, req.Dropoff, req.VehicleType)
	if err != nil {
		logger.Error("Failed to create ride", "error", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	respond(c, http.StatusCreated, r)
}

// updateRideRequest accepts the fields either at the top level or nested
// under "updates", the shape older clients send alongside a body id.
type updateRideRequest struct {
	ride.Update
	Updates *ride.Update `json:"updates"`
}

func (a *API) updateRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)
	id := c.Param("id")

	var req updateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind ride update", "error", err)
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	u := req.Update
	if req.Updates != nil {
		u = *req.Updates
	}

	r, err := a.rs.UpdateRide(c.Request.Context(), id, u)
	if err != nil {
		switch {
		case errors.Is(err, ride.ErrNotFound):
			fail(c, http.StatusNotFound, "Ride not found")
		case errors.Is(err, ride.ErrInvalidStatus):
			fail(c, http.StatusBadRequest, err.Error())
		default:
			logger.Error("Failed to update ride", "ride_id", id, "error", err)
			fail(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respond(c, http.StatusOK, r)
}

func (a *API) cancelRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)
	id := c.Param("id")

	r, err := a.rs.CancelRide(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ride.ErrNotFound):
			fail(c, http.StatusNotFound, "Ride not found")
		case errors.Is(err, ride.ErrTerminal):
			fail(c, http.StatusConflict, err.Error())
		default:
			logger.Error("Failed to cancel ride", "ride_id", id, "error", err)
			fail(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respond(c, http.StatusOK, r)
}
