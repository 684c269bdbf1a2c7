package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/semanticallynull/gocab-backend/internal/middleware"
	"github.com/semanticallynull/gocab-backend/ride"
	"github.com/semanticallynull/gocab-backend/user"
)

func (a *API) summary(c *gin.Context) (ride.Summary, error) {
	rides, err := a.rs.ListRides(c.Request.Context())
	if err != nil {
		return ride.Summary{}, fmt.Errorf("list rides: %w", err)
	}
	return ride.Summarize(rides), nil
}

func (a *API) summaryHandler(c *gin.Context) {
	s, err := a.summary(c)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to summarize rides", "error", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	respond(c, http.StatusOK, s)
}

type InsightsResponse struct {
	Summary  ride.Summary `json:"summary"`
	Insights string       `json:"insights"`
}

func (a *API) insightsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	s, err := a.summary(c)
	if err != nil {
		logger.Error("Failed to summarize rides", "error", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		logger.Error("Failed to encode summary", "error", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	respond(c, http.StatusOK, InsightsResponse{
		Summary:  s,
		Insights: a.ai.AnalyzeRideData(c.Request.Context(), string(data)),
	})
}

type assistantRequest struct {
	Prompt string    `json:"prompt" binding:"required"`
	UserID string    `json:"userId"`
	Role   user.Role `json:"role"`
}

type AssistantResponse struct {
	Reply string `json:"reply"`
}

func (a *API) assistantHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req assistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind assistant request", "error", err)
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	appContext := fmt.Sprintf("Role: %s", req.Role)
	if req.UserID != "" {
		if u, err := a.ur.GetUser(c.Request.Context(), req.UserID); err == nil {
			appContext = fmt.Sprintf("Role: %s, Name: %s", u.Role, u.Name)
		}
	}

	respond(c, http.StatusOK, AssistantResponse{
		Reply: a.ai.SupportResponse(c.Request.Context(), req.Prompt, appContext),
	})
}
