package grpcclient

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/scene-classifier/internal/classifier"
	"github.com/example/scene-classifier/internal/logging"
)

// ClassifyMethod is the full gRPC method name served by remote classifiers.
// The request is a google.protobuf.BytesValue holding the image, the
// response a google.protobuf.StringValue holding the label.
const ClassifyMethod = "/classifier.v1.Classifier/Classify"

// DialClassifier returns a classifier backed by a remote gRPC service.
func DialClassifier(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*RemoteClassifier, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &RemoteClassifier{conn: conn, timeout: timeout, logger: logger.Named("remote_classifier")}, conn, nil
}

// RemoteClassifier sends staged images to a remote classification service.
type RemoteClassifier struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	logger  *zap.Logger
}

// Classify uploads the file at path and returns the label the service assigns.
func (r *RemoteClassifier) Classify(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read staged image: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp := &wrapperspb.StringValue{}
	if err := r.conn.Invoke(ctx, ClassifyMethod, wrapperspb.Bytes(data), resp); err != nil {
		r.logger.Error("classifier call failed", zap.Error(err), zap.String("path", path))
		return "", toClassifierError(err)
	}

	label := strings.TrimSpace(resp.GetValue())
	if label == "" {
		return "", &classifier.InferenceError{Message: "classifier produced no output"}
	}
	return label, nil
}

// toClassifierError keeps transport failures as plain errors and turns
// errors reported by the service itself into InferenceErrors.
func toClassifierError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		return err
	}
	msg := strings.TrimSpace(st.Message())
	if msg == "" {
		msg = st.Code().String()
	}
	return &classifier.InferenceError{Message: msg}
}
