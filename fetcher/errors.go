package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"policylens/types"
)

// TransientError marks a failure worth retrying: timeouts, connection
// resets, 5xx and rate-limit responses.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch error for %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix (4xx other than
// 408/429, malformed URLs). The target is skipped without retry.
type PermanentError struct {
	URL string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent fetch error for %s: %v", e.URL, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// FetchFailed is the terminal failure signal for one target. It is emitted
// on the result stream instead of aborting the batch.
type FetchFailed struct {
	Target   types.Target
	URL      string
	Err      error
	Attempts int
	At       time.Time
}

func (f *FetchFailed) Error() string {
	return fmt.Sprintf("fetch failed for target %s (%s) after %d attempt(s): %v",
		f.Target.Name, f.URL, f.Attempts, f.Err)
}

// classifyStatus maps an HTTP status code onto the retry taxonomy. Retryable
// statuses follow the original crawl settings: 500, 502, 503, 504, 408, 429.
func classifyStatus(url string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return &TransientError{URL: url, Err: fmt.Errorf("HTTP %d", status)}
	default:
		return &PermanentError{URL: url, Err: fmt.Errorf("HTTP %d", status)}
	}
}
