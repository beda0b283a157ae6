package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/scene-classifier/internal/auth"
	"github.com/example/scene-classifier/internal/logging"
	"github.com/example/scene-classifier/internal/usecase"
)

// FileField is the multipart field carrying the image.
const FileField = "file"

const (
	msgMethodNotAllowed = "Method not allowed"
	msgNoFile           = "No file uploaded"
	msgTooLarge         = "File too large"
	msgInvalidType      = "Invalid file type"
	msgFallback         = "Error processing image"
)

// Predictor is the part of the prediction use case the HTTP layer needs.
type Predictor interface {
	Predict(ctx context.Context, upload usecase.Upload) (string, string, error)
	Summary() usecase.MetricsSummary
}

// Options configures the HTTP surface.
type Options struct {
	PredictPath string
	// MaxUploadSize caps the request body in bytes. Zero disables the cap.
	MaxUploadSize int64
	// ExposeErrors returns internal error messages to the client instead
	// of a generic message.
	ExposeErrors bool
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, predictor Predictor, opts Options, authMiddleware gin.HandlerFunc, logger *zap.Logger) {
	h := &predictHandler{predictor: predictor, opts: opts, logger: logger.Named("predict_handler")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics/summary", func(c *gin.Context) {
		c.JSON(http.StatusOK, predictor.Summary())
	})

	router.Any(opts.PredictPath, postOnly, authMiddleware, h.handle)
}

// postOnly rejects every method but POST before any other middleware runs.
func postOnly(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": msgMethodNotAllowed})
		return
	}
	c.Next()
}

type predictHandler struct {
	predictor Predictor
	opts      Options
	logger    *zap.Logger
}

// handle reads the multipart stream itself so that the file part is staged
// straight from the request body. Nothing is spooled by the transport.
func (h *predictHandler) handle(c *gin.Context) {
	if h.opts.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadSize)
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		h.fail(c, logging.NewOperationError("predict.parse", "", err))
		return
	}

	part, err := nextFilePart(reader)
	if errors.Is(err, io.EOF) {
		h.logger.Warn("no file received in request")
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFile})
		return
	}
	if err != nil {
		h.fail(c, logging.NewOperationError("predict.parse", "", err))
		return
	}
	defer part.Close()

	if subject, ok := auth.Subject(c.Request.Context()); ok {
		h.logger.Debug("authenticated upload", zap.String("subject", subject))
	}

	requestID, label, err := h.predictor.Predict(c.Request.Context(), usecase.Upload{
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Content:     part,
	})
	c.Header("X-Request-ID", requestID)
	if err != nil {
		if errors.Is(err, usecase.ErrUnsupportedMediaType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidType})
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"prediction": label})
}

// nextFilePart returns the first part named FileField, whether or not it
// carries a filename. io.EOF means the body holds no such part.
func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == FileField {
			return part, nil
		}
		if _, err := io.Copy(io.Discard, part); err != nil {
			part.Close()
			return nil, err
		}
		part.Close()
	}
}

func (h *predictHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": h.errorMessage(err)})
}

func (h *predictHandler) errorMessage(err error) string {
	if !h.opts.ExposeErrors {
		return msgFallback
	}
	if msg := strings.TrimSpace(logging.Cause(err).Error()); msg != "" {
		return msg
	}
	return msgFallback
}
