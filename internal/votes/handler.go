package votes

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/internal/validate"
	"github.com/pollboard/backend/pkg/response"
)

// CastRequest is the body for POST /polls/:id/votes.
type CastRequest struct {
	VoterID     string `json:"voter_id" binding:"required"`
	OptionIndex *int   `json:"option_index" binding:"required"`
}

// Handler handles vote HTTP endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a votes handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// Cast handles POST /polls/:id/votes.
func (h *Handler) Cast(c *gin.Context) {
	var req CastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validate.Snowflake(req.VoterID) {
		response.BadRequest(c, "invalid voter_id")
		return
	}

	result, err := h.service.Cast(c.Request.Context(), c.Param("id"), req.VoterID, *req.OptionIndex)
	if err != nil {
		h.writeError(c, err, "failed to cast vote")
		return
	}
	response.OK(c, result)
}

// Retract handles DELETE /polls/:id/votes.
func (h *Handler) Retract(c *gin.Context) {
	var req CastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validate.Snowflake(req.VoterID) {
		response.BadRequest(c, "invalid voter_id")
		return
	}

	result, err := h.service.Retract(c.Request.Context(), c.Param("id"), req.VoterID, *req.OptionIndex)
	if err != nil {
		h.writeError(c, err, "failed to retract vote")
		return
	}
	response.OK(c, result)
}

// ListForVoter handles GET /polls/:id/votes/:voterId.
func (h *Handler) ListForVoter(c *gin.Context) {
	voterID := c.Param("voterId")
	if !validate.Snowflake(voterID) {
		response.BadRequest(c, "invalid voter id")
		return
	}

	records, err := h.service.ListForVoter(c.Request.Context(), c.Param("id"), voterID)
	if err != nil {
		h.writeError(c, err, "failed to list votes")
		return
	}
	response.OK(c, records)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "poll not found")
	case errors.Is(err, models.ErrOptionNotFound):
		response.NotFound(c, "option not found")
	case errors.Is(err, models.ErrPollClosed):
		response.Conflict(c, "poll is closed")
	case errors.Is(err, models.ErrVoteLimitExceeded):
		response.Conflict(c, "vote limit reached; retract a vote first")
	case errors.Is(err, models.ErrIneligible):
		response.Forbidden(c, "voter is not eligible for this poll")
	case errors.Is(err, models.ErrStorage):
		h.logger.Error(fallback, zap.Error(err), zap.String("poll_id", c.Param("id")))
		response.Internal(c, "storage temporarily unavailable")
	default:
		h.logger.Error(fallback, zap.Error(err), zap.String("poll_id", c.Param("id")))
		response.Internal(c, fallback)
	}
}
