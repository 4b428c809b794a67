package export

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/pkg/response"
	"github.com/pollboard/backend/pkg/storage"
)

// Handler handles export HTTP endpoints.
type Handler struct {
	builder *Builder
	polls   PollGetter
	s3      *storage.S3
	logger  *zap.Logger
}

// NewHandler creates an export handler. s3 may be nil, in which case the
// presigned-URL endpoint reports the export as unavailable.
func NewHandler(builder *Builder, polls PollGetter, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{builder: builder, polls: polls, s3: s3, logger: logger}
}

// Download handles GET /polls/:id/export. Streams the CSV directly, built
// fresh from the ledger.
func (h *Handler) Download(c *gin.Context) {
	pollID := c.Param("id")
	exp, err := h.builder.Build(c.Request.Context(), pollID)
	if err != nil {
		h.writeError(c, err, "failed to build export")
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
	c.Status(http.StatusOK)
	if err := exp.WriteCSV(c.Writer); err != nil {
		h.logger.Error("export stream failed", zap.Error(err), zap.String("poll_id", pollID))
	}
}

// DownloadURL handles GET /polls/:id/export/url. Returns a presigned S3 URL
// for the export uploaded by the worker on close.
func (h *Handler) DownloadURL(c *gin.Context) {
	pollID := c.Param("id")
	poll, err := h.polls.GetByID(c.Request.Context(), pollID)
	if err != nil {
		h.writeError(c, err, "failed to load poll")
		return
	}
	if h.s3 == nil || !poll.Settings.AllowExports || poll.Active {
		response.Conflict(c, "export is not available for this poll")
		return
	}

	key := storage.ExportKey(poll.GuildID, poll.ID, "poll-"+poll.ID+"-results.csv")
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), key, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign failed", zap.Error(err), zap.String("poll_id", pollID))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in_seconds": int(h.s3.PresignExpire().Seconds())})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "poll not found")
	case errors.Is(err, models.ErrExportUnavailable):
		response.Conflict(c, "export is not available for this poll")
	default:
		h.logger.Error(fallback, zap.Error(err), zap.String("poll_id", c.Param("id")))
		response.Internal(c, fallback)
	}
}
