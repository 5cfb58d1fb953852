package remote

import "go.uber.org/zap"

// NewDevelopmentLogger builds a human-readable zap logger suitable for
// tests and example programs. Production callers should build their own
// *zap.Logger and pass it via WithLogger/WithStubLogger instead.
func NewDevelopmentLogger() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on sink construction; fall back to
		// a logger that still works rather than leaving callers with nil.
		return zap.NewNop()
	}
	return logger
}
