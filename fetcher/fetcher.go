package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"policylens/config"
	"policylens/logger"
	"policylens/types"
)

// Result is one element of the batch output stream: either a fetched
// document or a terminal failure signal for a target.
type Result struct {
	Doc     *types.RawDocument
	Failure *FetchFailed
}

// Options configures a Fetcher. Zero values fall back to the config
// package defaults.
type Options struct {
	GlobalConcurrency int
	PerSourceDelay    time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
	Timeout           time.Duration
	UserAgent         string
}

func (o Options) withDefaults() Options {
	if o.GlobalConcurrency <= 0 {
		o.GlobalConcurrency = config.GlobalFetchConcurrency
	}
	if o.PerSourceDelay <= 0 {
		o.PerSourceDelay = config.PerSourceDelay
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = config.MaxFetchAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = config.FetchBackoffBase
	}
	if o.Timeout <= 0 {
		o.Timeout = config.FetchTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = config.UserAgent
	}
	return o
}

// Fetcher turns a batch of targets into a stream of raw documents. Each
// target runs on its own goroutine with a per-source rate limiter; a global
// semaphore bounds in-flight HTTP requests across all targets.
type Fetcher struct {
	client *http.Client
	opts   Options
	log    *logger.Logger

	sem chan struct{}

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(opts Options, log *logger.Logger) *Fetcher {
	o := opts.withDefaults()
	return &Fetcher{
		client:   &http.Client{Timeout: o.Timeout},
		opts:     o,
		log:      log.With("component", "fetcher"),
		sem:      make(chan struct{}, o.GlobalConcurrency),
		limiters: make(map[string]*rate.Limiter),
	}
}

// FetchBatch fetches all targets concurrently and returns a channel that is
// closed once every target has drained or failed. Cancelling ctx stops new
// requests; documents already fetched but not yet consumed are discarded by
// the caller, never partially committed.
func (f *Fetcher) FetchBatch(ctx context.Context, targets []types.Target) <-chan Result {
	out := make(chan Result)

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(target types.Target) {
			defer wg.Done()
			f.fetchTarget(ctx, target, out)
		}(t)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (f *Fetcher) fetchTarget(ctx context.Context, target types.Target, out chan<- Result) {
	var (
		docs []*types.RawDocument
		err  error
	)
	switch target.SourceType {
	case types.SourceRSS:
		docs, err = f.fetchRSS(ctx, target, out)
	case types.SourceHTML:
		docs, err = f.fetchHTMLIndex(ctx, target, out)
	default:
		err = &PermanentError{URL: target.URL, Err: fmt.Errorf("unknown source type %q", target.SourceType)}
	}

	if err != nil {
		f.emitFailure(ctx, out, target, target.URL, err)
		return
	}
	for _, doc := range docs {
		select {
		case out <- Result{Doc: doc}:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Fetcher) emitFailure(ctx context.Context, out chan<- Result, target types.Target, url string, err error) {
	attempts := 1
	if !IsPermanent(err) {
		attempts = f.opts.MaxAttempts
	}
	failure := &FetchFailed{
		Target:   target,
		URL:      url,
		Err:      err,
		Attempts: attempts,
		At:       time.Now().UTC(),
	}
	f.log.Warn("target fetch failed", "target", target.Name, "url", url, "error", err)
	select {
	case out <- Result{Failure: failure}:
	case <-ctx.Done():
	}
}

// limiter returns the shared rate limiter for one source, enforcing the
// minimum inter-request interval per source.
func (f *Fetcher) limiter(source string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[source]
	if !ok {
		l = rate.NewLimiter(rate.Every(f.opts.PerSourceDelay), 1)
		f.limiters[source] = l
	}
	return l
}

// get performs one rate-limited, retried GET and returns the body bytes.
// Transient failures back off exponentially up to MaxAttempts; permanent
// failures return immediately.
func (f *Fetcher) get(ctx context.Context, source, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		if err := f.limiter(source).Wait(ctx); err != nil {
			return nil, err
		}

		body, err := f.doGet(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if IsPermanent(err) || ctx.Err() != nil {
			return nil, err
		}

		if attempt < f.opts.MaxAttempts {
			backoff := f.opts.BackoffBase * time.Duration(1<<(attempt-1))
			f.log.Debug("retrying fetch", "url", url, "attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) doGet(ctx context.Context, url string) ([]byte, error) {
	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &PermanentError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransientError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(url, resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxBodyBytes))
	if err != nil {
		return nil, &TransientError{URL: url, Err: err}
	}
	return body, nil
}
