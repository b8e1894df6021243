// Package audit records who changed role assignments and when the engine's
// catalog or assignment set changed underneath running checks.
//
// Authorization decisions themselves are not audited; only mutations and
// maintenance runs are.
//
//	fileLogger, _ := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: "/var/log/lmsauthz"})
//	logger := audit.NewMultiLogger(fileLogger, sqlLogger)
//	evaluator, _ := rbac.NewEvaluator(catalog, store, rbac.WithAuditLogger(logger))
package audit
