package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/avail-checker/internal/db"
	"github.com/yourorg/avail-checker/internal/export"
	"github.com/yourorg/avail-checker/internal/queue"
	"github.com/yourorg/avail-checker/internal/types"
)

// RunQueue is the slice of *queue.Queue the HTTP layer drives.
type RunQueue interface {
	AddDomains(items []types.DomainItem) (*queue.Run, error)
	Progress() types.Progress
	Available() []types.DomainItem
	Clear()
	Subscribe(buf int) (<-chan types.Event, func())
}

type Handler struct {
	q         RunQueue
	suffixes  []string
	runs      db.RunRepository // nil when run history is off
	log       *zap.Logger
	heartbeat time.Duration
}

type Option func(*Handler)

func WithRunRepo(r db.RunRepository) Option { return func(h *Handler) { h.runs = r } }

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

func NewHandler(q RunQueue, suffixes []string, opts ...Option) *Handler {
	h := &Handler{q: q, suffixes: suffixes, log: zap.NewNop(), heartbeat: 15 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	a := r.Group("/api")
	{
		a.POST("/upload-excel", h.UploadFile)
		a.GET("/progress", h.GetProgress)
		a.GET("/progress/stream", h.StreamProgress)
		a.GET("/download-results", h.DownloadResults)
		a.POST("/clear-results", h.ClearResults)
		if h.runs != nil {
			a.GET("/runs", h.ListRuns)
			a.GET("/runs/:id", h.GetRun)
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.q.Progress())
}

func (h *Handler) DownloadResults(c *gin.Context) {
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, h.q.Available()); err != nil {
		h.log.Error("render export", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao gerar arquivo"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func (h *Handler) ClearResults(c *gin.Context) {
	h.q.Clear()
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) GetRun(c *gin.Context) {
	rec, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}
