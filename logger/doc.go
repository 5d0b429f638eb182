// Package logger provides structured logging built on zerolog.
//
// Loggers are component-scoped and take structured fields as maps:
//
//	log := logger.Get("supervisor")
//	log.Info("server ready", logger.Fields(logger.FieldPort, 41233))
//
// Request and session identifiers stored in a context with
// ContextWithRequestID and ContextWithSessionID are attached by WithContext.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//	  output: "stderr"
package logger
