package poller

import (
	"time"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/logger"
)

// Log is the package logger; nil falls back to stderr.
var Log *logger.Logger

// SetLogger injects the application logger.
func SetLogger(l *logger.Logger) {
	Log = l
}

func logf(level logger.LogLevel, msg string, kv ...interface{}) {
	logger.Emit(Log, "poller", level, msg, kv...)
}

func logError(msg string, kv ...interface{}) { logf(logger.ERROR, msg, kv...) }
func logWarn(msg string, kv ...interface{})  { logf(logger.WARN, msg, kv...) }
func logInfo(msg string, kv ...interface{})  { logf(logger.INFO, msg, kv...) }
func logDebug(msg string, kv ...interface{}) { logf(logger.DEBUG, msg, kv...) }

// warnEvery logs at most once per interval for key.
func warnEvery(key string, interval time.Duration, msg string, kv ...interface{}) {
	if Log != nil {
		Log.WarnRateLimited(key, interval, msg, kv...)
		return
	}
	logWarn(msg, kv...)
}
