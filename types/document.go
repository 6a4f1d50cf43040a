package types

import "time"

// SourceType selects the fetch strategy for a target.
type SourceType string

const (
	SourceRSS  SourceType = "rss"
	SourceHTML SourceType = "html"
)

// Target describes one configured source. Targets are built from
// configuration at process start and never mutated afterwards.
type Target struct {
	Name       string     `json:"name"`
	SourceType SourceType `json:"source_type"`
	URL        string     `json:"url"`
	Country    string     `json:"country,omitempty"`
	// MaxItems caps how many documents one batch may take from this target.
	MaxItems int `json:"max_items,omitempty"`
}

// RawDocument is a fetched document before pipeline processing. CanonicalURL
// plus ContentHash identify a version: same pair means the same document,
// a changed hash under the same URL means a superseding version.
type RawDocument struct {
	SourceName   string    `json:"source_name"`
	Country      string    `json:"country,omitempty"`
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonical_url"`
	ContentHash  string    `json:"content_hash"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	BodyText     string    `json:"body_text"`
	Summary      string    `json:"summary,omitempty"`
	Author       string    `json:"author,omitempty"`
	Categories   []string  `json:"categories,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	FetchedAt    time.Time `json:"fetched_at"`
	// PublishedRaw keeps the source's own date string for the pipeline's
	// normalization stage when the feed did not parse it.
	PublishedRaw string `json:"published_raw,omitempty"`
}

// Item is the typed projection of a RawDocument as it moves through the
// pipeline. Stages return modified copies; an Item never reaches the store
// without passing every stage.
type Item struct {
	SourceName   string    `json:"source_name"`
	Country      string    `json:"country,omitempty"`
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonical_url"`
	ContentHash  string    `json:"content_hash"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	BodyText     string    `json:"body_text"`
	Summary      string    `json:"summary,omitempty"`
	Author       string    `json:"author,omitempty"`
	Categories   []string  `json:"categories,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	PublishedRaw string    `json:"published_raw,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`

	// Derived by the enrichment stage.
	Language  string `json:"language,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
}

// ItemFromRaw builds the pipeline input for a fetched document.
func ItemFromRaw(doc *RawDocument) Item {
	return Item{
		SourceName:   doc.SourceName,
		Country:      doc.Country,
		URL:          doc.URL,
		CanonicalURL: doc.CanonicalURL,
		ContentHash:  doc.ContentHash,
		Title:        doc.Title,
		Body:         doc.Body,
		BodyText:     doc.BodyText,
		Summary:      doc.Summary,
		Author:       doc.Author,
		Categories:   doc.Categories,
		PublishedAt:  doc.PublishedAt,
		PublishedRaw: doc.PublishedRaw,
		FetchedAt:    doc.FetchedAt,
	}
}
