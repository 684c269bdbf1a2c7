package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/gocab-backend/internal/middleware"
	"github.com/semanticallynull/gocab-backend/user"
)

type onlineRequest struct {
	ID       string `json:"id" binding:"required"`
	IsOnline *bool  `json:"isOnline" binding:"required"`
}

func (a *API) toggleOnlineHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req onlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind online request", "error", err)
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	u, err := a.ur.SetOnline(c.Request.Context(), req.ID, *req.IsOnline)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			fail(c, http.StatusNotFound, "User not found")
			return
		}
		logger.Error("Failed to set online flag", "error", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	a.publish(user.Collection, u.ID)
	respond(c, http.StatusOK, u)
}

func (a *API) usersHandler(c *gin.Context) {
	users, err := a.ur.GetUsers(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).Error("Failed to get users", "error", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	respond(c, http.StatusOK, users)
}
