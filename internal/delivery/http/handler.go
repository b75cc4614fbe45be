package http

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cardlens/scanner/internal/domain"
	"github.com/cardlens/scanner/internal/usecase"
)

// maxUploadBytes caps identify uploads at 20 MB; larger frames are rejected
// before touching the pipeline.
const maxUploadBytes = 20 << 20

// Handler holds dependencies for HTTP handlers
type Handler struct {
	identify  *usecase.IdentifyService
	resolver  *usecase.ResolverService
	uploadDir string
}

// NewHandler creates a new HTTP handler. Uploaded frames are staged under
// uploadDir; the OS temp dir is used when it is empty.
func NewHandler(identify *usecase.IdentifyService, resolver *usecase.ResolverService, uploadDir string) *Handler {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &Handler{identify: identify, resolver: resolver, uploadDir: uploadDir}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "cardlens-scanner",
		"version": "1.0.0",
	})
}

// IdentifyCard accepts a multipart card photo and runs it through the
// identification pipeline. Diagnostics (candidates, OCR text) are returned
// even when no confident identity was found.
func (h *Handler) IdentifyCard(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'image' form file"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	dst := filepath.Join(h.uploadDir, fmt.Sprintf("upload-%s%s", uuid.NewString(), filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		log.Printf("[HTTP] saving upload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return
	}
	defer os.Remove(dst)

	result, err := h.identify.Identify(c.Request.Context(), dst)
	if err != nil {
		status := statusForError(err)
		body := gin.H{"error": err.Error()}
		if result != nil {
			body["candidates"] = result.Candidates
			if result.Text != nil {
				body["ocr"] = result.Text
			}
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCardPrice returns identity plus flattened pricing for a known card ID.
func (h *Handler) GetCardPrice(c *gin.Context) {
	cardID := c.Param("id")

	cached, fromCache, err := h.resolver.ResolveAndPrice(c.Request.Context(), cardID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"card":      cached.Card,
		"price":     cached.Price,
		"fromCache": fromCache,
	})
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCardNotFound), errors.Is(err, domain.ErrNoMatch):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRetryableNetwork), errors.Is(err, domain.ErrFatalNetwork), errors.Is(err, domain.ErrResolution):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
