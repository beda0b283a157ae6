package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/scene-classifier/internal/classifier"
	"github.com/example/scene-classifier/internal/logging"
	"github.com/example/scene-classifier/internal/staging"
)

// ErrUnsupportedMediaType is returned when the staged bytes are not an allowed image type.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Upload is the file part received from the client. Size is the declared
// length and stays zero when the upload is streamed.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Content     io.Reader
}

// Options tunes the prediction pipeline.
type Options struct {
	// AllowedMediaTypes lists the detected content types accepted for
	// classification. Empty accepts anything.
	AllowedMediaTypes []string
	// StrictCleanup fails a successful prediction when its working file
	// cannot be removed.
	StrictCleanup bool
}

// PredictionUseCase stages uploads, runs the classifier on them and
// reclaims the working files.
type PredictionUseCase struct {
	area          *staging.Area
	classifier    classifier.Classifier
	allowed       []string
	strictCleanup bool
	logger        *zap.Logger
	metrics       *Metrics
	newRequestID  func() string
}

// NewPredictionUseCase constructs a new use case instance.
func NewPredictionUseCase(area *staging.Area, clf classifier.Classifier, opts Options, logger *zap.Logger) *PredictionUseCase {
	return &PredictionUseCase{
		area:          area,
		classifier:    clf,
		allowed:       append([]string(nil), opts.AllowedMediaTypes...),
		strictCleanup: opts.StrictCleanup,
		logger:        logger.Named("prediction_usecase"),
		metrics:       &Metrics{},
		newRequestID:  uuid.NewString,
	}
}

// Predict runs one upload through the pipeline and returns the request
// identifier together with the label. The working file never outlives the
// call unless removing it is what failed.
func (uc *PredictionUseCase) Predict(ctx context.Context, upload Upload) (requestID, label string, err error) {
	requestID = uc.newRequestID()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)
	opLogger.Info("file received",
		zap.String("filename", upload.Filename),
		zap.Int64("size", upload.Size),
		zap.String("content_type", upload.ContentType),
	)

	uc.metrics.begin()
	defer func() { uc.metrics.finish(err == nil) }()

	file, err := uc.area.Stage(requestID, upload.Filename, upload.Content)
	if err != nil {
		err = logging.NewOperationError("predict.stage", requestID, err)
		opLogger.Error("failed to stage upload", zap.Error(err))
		return requestID, "", err
	}
	opLogger.Info("upload staged", zap.String("path", file.Path), zap.Int64("bytes", file.Size))

	label, err = uc.classify(ctx, requestID, file.Path, opLogger)

	if cleanupErr := file.Remove(); cleanupErr != nil {
		wrapped := logging.NewOperationError("predict.cleanup", requestID, cleanupErr)
		opLogger.Error("failed to remove staged file", zap.Error(wrapped), zap.String("path", file.Path))
		if err == nil && uc.strictCleanup {
			return requestID, "", wrapped
		}
	} else {
		opLogger.Debug("staged file removed", zap.String("path", file.Path))
	}

	return requestID, label, err
}

// Summary reports the request counters accumulated since start.
func (uc *PredictionUseCase) Summary() MetricsSummary {
	return uc.metrics.Summary()
}

func (uc *PredictionUseCase) classify(ctx context.Context, requestID, path string, opLogger *zap.Logger) (string, error) {
	if len(uc.allowed) > 0 {
		detected, err := mimetype.DetectFile(path)
		if err != nil {
			err = logging.NewOperationError("predict.validate", requestID, err)
			opLogger.Error("failed to detect media type", zap.Error(err))
			return "", err
		}
		if !allowedType(detected, uc.allowed) {
			err := logging.NewOperationError("predict.validate", requestID,
				fmt.Errorf("%w: %s", ErrUnsupportedMediaType, detected.String()))
			opLogger.Warn("rejected upload", zap.Error(err))
			return "", err
		}
	}

	invokeStart := time.Now()
	label, err := uc.classifier.Classify(ctx, path)
	uc.metrics.observeInference(time.Since(invokeStart))
	if err != nil {
		err = logging.NewOperationError("predict.classify", requestID, err)
		opLogger.Error("classification failed", zap.Error(err))
		return "", err
	}
	opLogger.Info("prediction result", zap.String("prediction", label))
	return label, nil
}

func allowedType(detected *mimetype.MIME, allowed []string) bool {
	for _, mime := range allowed {
		if detected.Is(mime) {
			return true
		}
	}
	return false
}
