package storage

import "github.com/hlebuschek/printer-inventory-django-sub001/common/logger"

// Log is the package logger; nil falls back to stderr.
var Log *logger.Logger

// SetLogger injects the application logger.
func SetLogger(l *logger.Logger) {
	Log = l
}

func logf(level logger.LogLevel, msg string, kv ...interface{}) {
	logger.Emit(Log, "storage", level, msg, kv...)
}

func logWarn(msg string, kv ...interface{})  { logf(logger.WARN, msg, kv...) }
func logInfo(msg string, kv ...interface{})  { logf(logger.INFO, msg, kv...) }
func logDebug(msg string, kv ...interface{}) { logf(logger.DEBUG, msg, kv...) }
