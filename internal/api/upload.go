package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/avail-checker/internal/ingest"
	"github.com/yourorg/avail-checker/internal/queue"
)

// UploadFile reads the multipart "file" field, keeps rows whose domain carries
// a recognized suffix, and queues them.
func (h *Handler) UploadFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nenhum arquivo enviado", "details": err.Error()})
		return
	}
	defer file.Close()

	rows, err := ingest.Parse(header.Filename, file)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, ingest.ErrUnsupportedFormat) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": "Erro ao processar arquivo", "details": err.Error()})
		return
	}

	items, err := ingest.ToItems(rows, h.suffixes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Erro ao processar arquivo", "details": err.Error()})
		return
	}

	run, err := h.q.AddDomains(items)
	if errors.Is(err, queue.ErrEmptyBatch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Erro ao processar arquivo", "details": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("queue domains", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao processar arquivo", "details": err.Error()})
		return
	}

	h.log.Info("upload queued",
		zap.String("file", header.Filename),
		zap.Int("rows", len(rows)),
		zap.Int("domains", len(items)),
		zap.String("run_id", run.ID()),
	)
	c.JSON(http.StatusOK, gin.H{
		"message":      fmt.Sprintf("%d domínios adicionados à fila", len(items)),
		"totalDomains": len(items),
		"runId":        run.ID(),
	})
}
