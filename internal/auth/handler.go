package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/validate"
	"github.com/pollboard/backend/pkg/response"
	"github.com/pollboard/backend/pkg/utils"
)

// TokenRequest is the body for POST /auth/token. Dashboard clients exchange
// the shared API key for a short-lived JWT scoped to a Discord user.
type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role"` // optional, defaults to viewer
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	jwt        *JWTService
	apiKeyHash string
	logger     *zap.Logger
}

// NewHandler creates an auth handler. apiKeyHash is the bcrypt hash of the
// dashboard API key; an empty hash disables the token endpoint.
func NewHandler(jwt *JWTService, apiKeyHash string, logger *zap.Logger) *Handler {
	return &Handler{jwt: jwt, apiKeyHash: apiKeyHash, logger: logger}
}

// Token handles POST /auth/token.
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validate.Snowflake(req.UserID) {
		response.BadRequest(c, "invalid user_id")
		return
	}

	role := "viewer"
	if req.Role != "" {
		switch req.Role {
		case "admin", "viewer":
			role = req.Role
		default:
			response.BadRequest(c, "invalid role")
			return
		}
	}

	if h.apiKeyHash == "" || !utils.CheckKey(req.APIKey, h.apiKeyHash) {
		response.Unauthorized(c, "invalid api key")
		return
	}

	token, err := h.jwt.Generate(req.UserID, role)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, response.Body{Success: true, Data: TokenResponse{Token: token, Role: role}})
}
