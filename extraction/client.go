package extraction

import (
	"context"
	"time"
)

// Document is the slice of a record version the inference call sees.
type Document struct {
	Title       string
	Body        string
	SourceName  string
	Language    string
	PublishedAt time.Time
}

// Entity is one structured fact returned by the inference service.
type Entity struct {
	Kind       string                 `json:"kind"`
	Name       string                 `json:"name"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Confidence float64                `json:"confidence"`
}

// Client is the single external dependency of the extraction worker: one
// bounded-timeout structured-extraction call.
type Client interface {
	Extract(ctx context.Context, doc Document) ([]Entity, error)
	ModelVersion() string
}
