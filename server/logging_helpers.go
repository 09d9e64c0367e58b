package main

import "github.com/hlebuschek/printer-inventory-django-sub001/common/logger"

// logf writes through serverLogger once setupLogging has run.
func logf(level logger.LogLevel, msg string, kv ...interface{}) {
	logger.Emit(serverLogger, "", level, msg, kv...)
}

func logError(msg string, kv ...interface{}) { logf(logger.ERROR, msg, kv...) }
func logWarn(msg string, kv ...interface{})  { logf(logger.WARN, msg, kv...) }
func logInfo(msg string, kv ...interface{})  { logf(logger.INFO, msg, kv...) }
func logDebug(msg string, kv ...interface{}) { logf(logger.DEBUG, msg, kv...) }
