package pipeline

import (
	"context"
	"time"

	"policylens/types"
)

// Rejection is the error a stage returns to drop an item. Anything else a
// stage returns is treated as a stage bug, not an item problem.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Reject builds a stage rejection with the given reason tag.
func Reject(reason string) error { return &Rejection{Reason: reason} }

// Stage is one pure transformation in the pipeline. Run must not touch
// external stores; it either returns the (possibly modified) item or a
// Rejection.
type Stage struct {
	Name string
	Run  func(item types.Item) (types.Item, error)
}

// RejectedItem is what reaches the quarantine sink: the item as it looked
// when rejected, plus which stage dropped it and why.
type RejectedItem struct {
	Item   types.Item
	Stage  string
	Reason string
	At     time.Time
}

// Sink receives rejected items for offline inspection and replay.
type Sink interface {
	Quarantine(ctx context.Context, rejected RejectedItem) error
}

// Outcome is the tagged result of one pipeline run: exactly one of Item
// (accepted, fully transformed) or Rejected is set.
type Outcome struct {
	Item     types.Item
	Rejected *RejectedItem
}

func (o Outcome) Accepted() bool { return o.Rejected == nil }

// Pipeline runs its stages in declared order. A rejection short-circuits the
// remaining stages. Processing is deterministic: the same item and stage
// list always produce the same outcome.
type Pipeline struct {
	stages []Stage
}

func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Default builds the standard stage order: shape validation, normalization,
// enrichment, policy filtering.
func Default(policy Policy) *Pipeline {
	return New(
		ValidateStage(),
		NormalizeStage(),
		EnrichStage(),
		PolicyStage(policy),
	)
}

// Process runs the item through every stage. The caller persists accepted
// items and routes rejected ones to a Sink; stages themselves never persist.
func (p *Pipeline) Process(item types.Item) Outcome {
	current := item
	for _, stage := range p.stages {
		next, err := stage.Run(current)
		if err != nil {
			reason := err.Error()
			if rej, ok := err.(*Rejection); ok {
				reason = rej.Reason
			}
			return Outcome{Rejected: &RejectedItem{
				Item:   current,
				Stage:  stage.Name,
				Reason: reason,
				At:     time.Now().UTC(),
			}}
		}
		current = next
	}
	return Outcome{Item: current}
}

// MemorySink collects rejections in memory. Used in tests and as a fallback
// when no durable sink is configured.
type MemorySink struct {
	Items []RejectedItem
}

func (s *MemorySink) Quarantine(_ context.Context, rejected RejectedItem) error {
	s.Items = append(s.Items, rejected)
	return nil
}
