package streampool

import (
	"context"
	"log/slog"

	"github.com/lhauspie/streampool/internal/attemptmgr"
)

// PreconnectPool wraps a Pool to drive speculative connection warm-up: it
// issues a low-priority request against the underlying pool and discards
// the result, closing the connection immediately. The manager that served
// the request exits once it has handed out a result, so a later real
// request for the same destination gets a new manager and starts its
// attempts from scratch. This supplements the core
// attempt-manager contract with the preconnect behavior HTTP stream pools
// use to hide connection-setup latency ahead of a predicted navigation.
type PreconnectPool struct {
	pool   *Pool
	logger *slog.Logger
}

// NewPreconnectPool wraps pool.
func NewPreconnectPool(pool *Pool, logger *slog.Logger) *PreconnectPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreconnectPool{pool: pool, logger: logger}
}

// Warm speculatively establishes (and then discards) a connection to key.
// It returns once a connection succeeded or failed, never blocking the
// caller beyond ctx's lifetime. The underlying manager is not kept
// running afterwards.
func (w *PreconnectPool) Warm(ctx context.Context, key attemptmgr.StreamKey) error {
	res, err := w.pool.RequestStream(ctx, key, attemptmgr.PriorityLow)
	if err != nil {
		w.logger.Debug("preconnect failed", "stream_key", key.String(), "error", err)
		return err
	}
	if res.Conn != nil {
		_ = res.Conn.Close()
	}
	return nil
}

// WarmAll issues a Warm call for every key concurrently, waiting for all of
// them to finish or ctx to end.
func (w *PreconnectPool) WarmAll(ctx context.Context, keys []attemptmgr.StreamKey) {
	done := make(chan struct{})
	remaining := len(keys)
	if remaining == 0 {
		return
	}
	results := make(chan error, remaining)
	for _, key := range keys {
		go func(k attemptmgr.StreamKey) {
			results <- w.Warm(ctx, k)
		}(key)
	}
	go func() {
		for i := 0; i < remaining; i++ {
			<-results
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
