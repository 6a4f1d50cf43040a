package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Probe reports whether a dependent service is ready. A nil error means
// ready; anything else means try again.
type Probe func(ctx context.Context) error

// WaitReady polls the probe on a fixed interval up to maxAttempts, returning
// a timeout error once attempts are exhausted. Used wherever a dependent
// service must be awaited before proceeding (the external wrapper polls the
// API health endpoint this way before dispatching scheduled jobs).
func WaitReady(ctx context.Context, probe Probe, interval time.Duration, maxAttempts int) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := probe(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxAttempts {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("not ready after %d attempt(s): %w", maxAttempts, lastErr)
}

// HTTPProbe probes a URL; any 2xx response counts as ready.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("health endpoint returned HTTP %d", resp.StatusCode)
		}
		return nil
	}
}
