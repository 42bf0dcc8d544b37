package logging

import "go.uber.org/zap"

const defaultServiceName = "water-metering-worker"

// NewLogger builds the production logger shared by every component of the
// worker. The service field separates this worker's output from the rest of
// the platform in log aggregation.
func NewLogger(serviceName string) (*zap.Logger, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	cfg := zap.NewProductionConfig()
	cfg.InitialFields = map[string]interface{}{
		"service": serviceName,
	}
	return cfg.Build()
}

// WithRequestID returns a child logger scoped to one command message.
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}
