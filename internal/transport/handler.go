package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/anime-shed/order-image-relay/internal/config"
	apperrors "github.com/anime-shed/order-image-relay/internal/errors"
	"github.com/anime-shed/order-image-relay/internal/filestore"
	"github.com/anime-shed/order-image-relay/internal/logger"
	"github.com/anime-shed/order-image-relay/internal/service"
	"github.com/anime-shed/order-image-relay/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	msgImageURLRequired = "Image URL is required"
	msgNoImageUploaded  = "No image file uploaded"
	msgFileNotFound     = "File not found"
)

// UploadStore is the subset of the file store the HTTP layer needs.
type UploadStore interface {
	Dir() string
	Save(r io.Reader, originalName string) (*filestore.StoredImage, error)
	Open(name string) (io.ReadCloser, *filestore.StoredImage, error)
}

type handler struct {
	svc   service.OrderExtractionService
	store UploadStore
	cfg   *config.Config
}

func NewHandler(svc service.OrderExtractionService, store UploadStore, cfg *config.Config) http.Handler {
	h := &handler{svc: svc, store: store, cfg: cfg}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxRequestBodySize

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestMetrics(),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		requestSizeLimiter(cfg.MaxRequestBodySize),
	)

	r.GET("/health", healthCheck)
	r.POST("/upload_image", h.uploadImage)
	r.GET("/uploads/:filename", h.serveUpload)
	r.POST("/process_image", h.processImage)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) uploadImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		logger.WithError(err).WithField("ip", c.ClientIP()).Warn("Upload without image file")
		h.respondError(c, apperrors.NewValidationError(msgNoImageUploaded, err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.respondError(c, apperrors.NewInternalError("Failed to read uploaded file", err))
		return
	}
	defer f.Close()

	img, err := h.store.Save(f, fh.Filename)
	if err != nil {
		h.respondError(c, apperrors.NewInternalError("Failed to store uploaded file", err))
		return
	}

	c.JSON(http.StatusOK, models.UploadResponse{
		FilePath: path.Join(filepath.ToSlash(h.store.Dir()), img.Name),
	})
}

func (h *handler) serveUpload(c *gin.Context) {
	name := c.Param("filename")

	rc, img, err := h.store.Open(name)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			h.respondError(c, apperrors.NewNotFoundError(msgFileNotFound, err))
			return
		}
		h.respondError(c, apperrors.NewInternalError("Failed to open file", err))
		return
	}
	defer rc.Close()

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(c.Writer, c.Request, img.Name, img.CreatedAt, rs)
		return
	}
	c.DataFromReader(http.StatusOK, img.Size, "application/octet-stream", rc, nil)
}

func (h *handler) processImage(c *gin.Context) {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	var req models.ProcessImageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ImageURL) == "" {
		h.respondError(c, apperrors.NewValidationError(msgImageURLRequired, err))
		return
	}

	logger.WithFields(logrus.Fields{
		"image_url": req.ImageURL,
		"ip":        c.ClientIP(),
	}).Info("Processing image")

	result, err := h.svc.ProcessImage(ctx, req.ImageURL)
	if err != nil {
		h.respondError(c, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"image_url":          req.ImageURL,
		"processing_time_ms": time.Since(startTime).Milliseconds(),
	}).Info("Image processed successfully")

	c.JSON(http.StatusOK, result)
}

// respondError renders err as {error, details}. Errors that are not an
// AppError are reported as internal.
func (h *handler) respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError("Internal server error", err)
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": appErr.StatusCode,
		"error_type":  appErr.Type,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error(appErr.Message)
	} else {
		entry.Warn(appErr.Message)
	}

	resp := models.ErrorResponse{Error: appErr.Message}
	if h.cfg.HTTP.ErrorDetails {
		resp.Details = appErr.Details
	}
	c.AbortWithStatusJSON(appErr.StatusCode, resp)
}
