package config

import "time"

// Politeness and retry defaults for the fetcher. Transient failures retry
// with exponential backoff; permanent failures skip the target immediately.
const (
	// UserAgent identifies the crawler to origin servers.
	UserAgent = "PolicyLens/0.1 Policy Research Bot"

	// GlobalFetchConcurrency bounds in-flight fetches across all sources.
	GlobalFetchConcurrency = 8

	// PerSourceDelay is the minimum interval between requests to one source.
	PerSourceDelay = 2 * time.Second

	// FetchTimeout bounds a single HTTP request.
	FetchTimeout = 30 * time.Second

	// MaxFetchAttempts bounds retries for transient fetch errors.
	MaxFetchAttempts = 3

	// FetchBackoffBase is the first retry delay; it doubles per attempt.
	FetchBackoffBase = 2 * time.Second

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes = 5 * 1024 * 1024
)

// Extraction worker defaults.
const (
	ExtractionWorkers     = 4
	ExtractionTimeout     = 60 * time.Second
	MaxExtractionAttempts = 3
	ExtractionBackoffBase = 5 * time.Second

	// RequeuePendingAge is how long a version may sit in extraction-pending
	// before a scheduled batch republishes its job.
	RequeuePendingAge = 30 * time.Minute
)

// Pipeline policy defaults.
const (
	// MaxPublishAge drops documents whose publish date is older than this.
	MaxPublishAge = 90 * 24 * time.Hour

	// MinBodyWords drops documents with less body text than this.
	MinBodyWords = 40
)
