// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync"

	"amplifier/internal/log"
)

var logger = log.New("transport")

// LoggingTransport writes every Nth payload to the log as JSON. It is the
// headless fallback when no network transport is configured.
type LoggingTransport struct {
	mu     sync.Mutex
	every  int
	count  int
	closed bool
}

// NewLoggingTransport logs one payload out of every. Values below 1 log
// every payload.
func NewLoggingTransport(every int) *LoggingTransport {
	logger.Infof("using LoggingTransport (every %d)", max(every, 1))
	return &LoggingTransport{every: max(every, 1)}
}

// Send logs data at INFO level when its turn comes.
func (lt *LoggingTransport) Send(data any) error {
	lt.mu.Lock()
	if lt.closed {
		lt.mu.Unlock()
		return ErrClosed
	}
	lt.count++
	due := lt.count%lt.every == 0
	lt.mu.Unlock()

	if !due {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		logger.Infof("%T: %+v (json: %v)", data, data, err)
		return nil
	}
	logger.Infof("%s", b)
	return nil
}

// Close stops further logging.
func (lt *LoggingTransport) Close() error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.closed = true
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
