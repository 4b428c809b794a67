package polls

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/internal/validate"
	"github.com/pollboard/backend/pkg/response"
)

// Handler handles poll HTTP endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a polls handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// Create handles POST /polls/:id. The id is the snowflake of the Discord
// message hosting the poll; the body is the raw creation payload, validated
// server-side so the bot frontend stays thin.
func (h *Handler) Create(c *gin.Context) {
	var input map[string]any
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	poll, fieldErrs, err := h.service.Create(c.Request.Context(), c.Param("id"), input)
	if len(fieldErrs) > 0 {
		response.ValidationFailed(c, fieldErrs)
		return
	}
	if err != nil {
		h.writeError(c, err, "failed to create poll")
		return
	}
	response.Created(c, poll)
}

// Get handles GET /polls/:id.
func (h *Handler) Get(c *gin.Context) {
	poll, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to load poll")
		return
	}
	response.OK(c, poll)
}

// List handles GET /guilds/:guildId/polls.
func (h *Handler) List(c *gin.Context) {
	guildID := c.Param("guildId")
	if !validate.Snowflake(guildID) {
		response.BadRequest(c, "invalid guild id")
		return
	}
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	list, err := h.service.ListByGuild(c.Request.Context(), guildID, limit, offset)
	if err != nil {
		h.writeError(c, err, "failed to list polls")
		return
	}
	response.OK(c, list)
}

// Tally handles GET /polls/:id/tally.
func (h *Handler) Tally(c *gin.Context) {
	result, err := h.service.Tally(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to compute tally")
		return
	}
	response.OK(c, result)
}

// UpdateSettings handles PATCH /polls/:id/settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var input map[string]any
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	poll, fieldErrs, err := h.service.UpdateSettings(c.Request.Context(), c.Param("id"), input)
	if len(fieldErrs) > 0 {
		response.ValidationFailed(c, fieldErrs)
		return
	}
	if err != nil {
		h.writeError(c, err, "failed to update settings")
		return
	}
	response.OK(c, poll)
}

// Close handles POST /polls/:id/close.
func (h *Handler) Close(c *gin.Context) {
	poll, final, err := h.service.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to close poll")
		return
	}
	response.OK(c, gin.H{"poll": poll, "tally": final})
}

// Reopen handles POST /polls/:id/reopen.
func (h *Handler) Reopen(c *gin.Context) {
	poll, err := h.service.Reopen(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to reopen poll")
		return
	}
	response.OK(c, poll)
}

// Delete handles DELETE /polls/:id.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete poll")
		return
	}
	response.NoContent(c)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "poll not found")
	case errors.Is(err, models.ErrInvalidState):
		response.Conflict(c, "operation not permitted in the poll's current state")
	case errors.Is(err, models.ErrInvalidSettings):
		response.BadRequest(c, "vote limits must satisfy min <= max <= option count")
	case errors.Is(err, models.ErrStorage):
		h.logger.Error(fallback, zap.Error(err), zap.String("poll_id", c.Param("id")))
		response.Internal(c, "storage temporarily unavailable")
	default:
		h.logger.Error(fallback, zap.Error(err), zap.String("poll_id", c.Param("id")))
		response.Internal(c, fallback)
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
