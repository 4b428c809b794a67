package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/validate"
	"github.com/pollboard/backend/pkg/response"
)

// VoteUnlockPayload is the expected body from the vote-site unlock webhook.
type VoteUnlockPayload struct {
	UserID    string `json:"user_id"`
	Site      string `json:"site"`
	Timestamp int64  `json:"timestamp"` // unix seconds; 0 means "now"
}

// Granter records a premium unlock for a user, deduplicating repeat deliveries.
type Granter interface {
	Grant(ctx context.Context, userID string, at time.Time) (bool, error)
}

// Handler handles vote-site webhooks that unlock premium features.
type Handler struct {
	premium Granter
	logger  *zap.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(premium Granter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{premium: premium, logger: logger}
}

// VoteUnlock handles POST /webhooks/vote-unlock. Vote sites deliver at least
// once, so duplicate deliveries within the same window are acknowledged
// without re-granting.
func (h *Handler) VoteUnlock(c *gin.Context) {
	var body VoteUnlockPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validate.Snowflake(body.UserID) {
		response.BadRequest(c, "invalid user_id")
		return
	}

	at := time.Now()
	if body.Timestamp > 0 {
		at = time.Unix(body.Timestamp, 0)
	}

	applied, err := h.premium.Grant(c.Request.Context(), body.UserID, at)
	if err != nil {
		h.logger.Error("premium grant failed", zap.Error(err), zap.String("user_id", body.UserID))
		response.Internal(c, "failed to apply unlock")
		return
	}

	h.logger.Info("vote-unlock webhook processed",
		zap.String("user_id", body.UserID),
		zap.String("site", body.Site),
		zap.Bool("applied", applied),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "applied": applied})
}
