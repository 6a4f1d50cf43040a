package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExtractionStatus tracks the extraction lifecycle of one record version.
type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "pending"
	ExtractionDone    ExtractionStatus = "extracted"
	ExtractionFailed  ExtractionStatus = "failed"
)

// RunStatus tracks a crawl run from start to finish.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// StoredRecord is the durable identity row for one logical document. The
// row itself carries no content; versions do. CurrentVersion always points
// at the highest committed version.
type StoredRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CanonicalURL   string    `gorm:"uniqueIndex;not null" json:"canonical_url"`
	SourceName     string    `gorm:"index" json:"source_name"`
	Country        string    `json:"country,omitempty"`
	CurrentVersion int       `gorm:"not null" json:"current_version"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`

	Versions []RecordVersion `gorm:"foreignKey:RecordID;references:ID" json:"versions,omitempty"`
}

func (StoredRecord) TableName() string { return "stored_record" }

func (r *StoredRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// RecordVersion holds the content of one committed version. Superseded
// versions are kept for audit; the unique (record_id, version) index is what
// makes concurrent upserts for the same identity lose cleanly.
type RecordVersion struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecordID         uuid.UUID        `gorm:"type:uuid;not null;index;uniqueIndex:idx_record_version" json:"record_id"`
	Version          int              `gorm:"not null;uniqueIndex:idx_record_version" json:"version"`
	ContentHash      string           `gorm:"not null;index" json:"content_hash"`
	Title            string           `json:"title"`
	Body             string           `gorm:"type:text" json:"body"`
	Language         string           `json:"language,omitempty"`
	Author           string           `json:"author,omitempty"`
	Summary          string           `gorm:"type:text" json:"summary,omitempty"`
	WordCount        int              `json:"word_count,omitempty"`
	PublishedAt      time.Time        `json:"published_at"`
	FetchedAt        time.Time        `gorm:"not null" json:"fetched_at"`
	ExtractionStatus ExtractionStatus `gorm:"not null;default:pending;index" json:"extraction_status"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
}

func (RecordVersion) TableName() string { return "record_version" }

func (v *RecordVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// ExtractedEntity is one structured fact derived from a record version.
// Provenance is the RecordVersionID plus the model version that produced it.
type ExtractedEntity struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RecordVersionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"record_version_id"`
	Kind            string         `gorm:"not null;index" json:"kind"`
	Name            string         `gorm:"not null" json:"name"`
	Payload         datatypes.JSON `json:"payload,omitempty"`
	Confidence      float64        `json:"confidence"`
	ModelVersion    string         `gorm:"not null" json:"model_version"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
}

func (ExtractedEntity) TableName() string { return "extracted_entity" }

func (e *ExtractedEntity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// QuarantineItem is the append-only record of a pipeline rejection. Payload
// carries the full item so a rejected document can be inspected or replayed.
type QuarantineItem struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CanonicalURL string         `gorm:"index" json:"canonical_url"`
	SourceName   string         `gorm:"index" json:"source_name"`
	Stage        string         `gorm:"not null" json:"stage"`
	Reason       string         `gorm:"not null" json:"reason"`
	Payload      datatypes.JSON `json:"payload,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
}

func (QuarantineItem) TableName() string { return "quarantine_item" }

func (q *QuarantineItem) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// CrawlRun is the audit row written around every batch.
type CrawlRun struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobName         string     `gorm:"not null;index" json:"job_name"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Status          RunStatus  `gorm:"not null" json:"status"`
	DocsFetched     int        `json:"docs_fetched"`
	DocsSaved       int        `json:"docs_saved"`
	DocsUnchanged   int        `json:"docs_unchanged"`
	DocsQuarantined int        `json:"docs_quarantined"`
	FetchFailures   int        `json:"fetch_failures"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message,omitempty"`
}

func (CrawlRun) TableName() string { return "crawl_run" }

func (r *CrawlRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
