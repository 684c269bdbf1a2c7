package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/gocab-backend/internal/middleware"
	"github.com/semanticallynull/gocab-backend/user"
)

// Token is handed out on every successful login. Nothing validates it.
const Token = "mock_jwt_token"

type loginRequest struct {
	Email string    `json:"email" binding:"required"`
	Role  user.Role `json:"role" binding:"required"`
}

type LoginResponse struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

func (a *API) loginHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind login request", "error", err)
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	u, err := a.ur.GetUserByEmailAndRole(c.Request.Context(), req.Email, req.Role)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logger.Info("Login rejected", "email", req.Email, "role", req.Role)
			fail(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		logger.Error("Failed to look up user", "error", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	respond(c, http.StatusOK, LoginResponse{User: u, Token: Token})
}
