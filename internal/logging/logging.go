// Package logging configures the process-wide logr/zap logger and defines
// the verbosity levels used across the autoscaler.
package logging

import (
	"github.com/go-logr/logr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Verbosity levels for logger.V(...). INFO-level messages are always
// emitted; higher levels require a matching --v setting.
const (
	INFO    = 0
	DEBUG   = 1
	VERBOSE = 2
	TRACE   = 4
)

// NewLogger creates the production logger at the given verbosity.
func NewLogger(verbosity int, devMode bool) logr.Logger {
	return zap.New(
		zap.UseDevMode(devMode),
		zap.Level(uberzap.NewAtomicLevelAt(zapcore.Level(-1*verbosity))),
	)
}
