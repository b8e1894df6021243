package audit

import (
	"context"
	"errors"
	"sync"
)

// MultiLogger logs to multiple audit loggers
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errMu   sync.Mutex
	errs    []error
}

// NewMultiLogger creates a synchronous multi-logger that writes to every destination
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// SetAsync sets whether logging should be asynchronous.
// Async failures are collected and returned by Close.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log implements Logger. Every destination is attempted even if one fails.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if m.async {
		for _, logger := range m.loggers {
			m.wg.Add(1)
			go func(l Logger) {
				defer m.wg.Done()
				if err := l.Log(ctx, event); err != nil {
					m.errMu.Lock()
					m.errs = append(m.errs, err)
					m.errMu.Unlock()
				}
			}(logger)
		}
		return nil
	}

	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until pending async writes finish
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Close waits for pending writes and closes every destination
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	m.errMu.Lock()
	errs := m.errs
	m.errs = nil
	m.errMu.Unlock()

	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
