package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"policylens/types"
)

func testPolicy() Policy {
	return Policy{
		Now: func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) },
	}
}

func TestProcessAcceptsValidItem(t *testing.T) {
	p := Default(testPolicy())
	out := p.Process(validItem())
	if !out.Accepted() {
		t.Fatalf("rejected: stage=%s reason=%s", out.Rejected.Stage, out.Rejected.Reason)
	}
	if out.Item.WordCount == 0 {
		t.Errorf("enrichment did not run")
	}
}

func TestProcessShortCircuitsOnRejection(t *testing.T) {
	var ranSecond bool
	p := New(
		Stage{Name: "first", Run: func(item types.Item) (types.Item, error) {
			return item, Reject("nope")
		}},
		Stage{Name: "second", Run: func(item types.Item) (types.Item, error) {
			ranSecond = true
			return item, nil
		}},
	)

	out := p.Process(validItem())
	if out.Accepted() {
		t.Fatal("expected rejection")
	}
	if ranSecond {
		t.Error("stage after rejection still ran")
	}
	if out.Rejected.Stage != "first" || out.Rejected.Reason != "nope" {
		t.Errorf("rejection = %+v", out.Rejected)
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	p := Default(testPolicy())
	item := validItem()

	first := p.Process(item)
	second := p.Process(item)

	if first.Accepted() != second.Accepted() {
		t.Fatal("same item produced different outcomes")
	}
	if first.Item.ContentHash != second.Item.ContentHash ||
		first.Item.WordCount != second.Item.WordCount ||
		first.Item.Language != second.Item.Language {
		t.Errorf("accepted items differ: %+v vs %+v", first.Item, second.Item)
	}
}

func TestRejectionReachesSink(t *testing.T) {
	p := Default(testPolicy())
	sink := &MemorySink{}

	item := validItem()
	item.Title = ""

	out := p.Process(item)
	if out.Accepted() {
		t.Fatal("expected rejection")
	}
	if err := sink.Quarantine(context.Background(), *out.Rejected); err != nil {
		t.Fatalf("quarantine: %v", err)
	}

	if len(sink.Items) != 1 {
		t.Fatalf("sink holds %d items, want 1", len(sink.Items))
	}
	got := sink.Items[0]
	if got.Stage != "validate" || got.Reason != "missing_field:title" {
		t.Errorf("quarantined = stage %q reason %q", got.Stage, got.Reason)
	}
	if got.Item.CanonicalURL != item.CanonicalURL {
		t.Errorf("quarantined item lost its identity")
	}
}

func TestStageErrorIsNotSwallowed(t *testing.T) {
	bugErr := errors.New("stage bug")
	p := New(Stage{Name: "buggy", Run: func(item types.Item) (types.Item, error) {
		return item, bugErr
	}})

	out := p.Process(validItem())
	if out.Accepted() {
		t.Fatal("expected non-accepted outcome")
	}
	if out.Rejected.Reason != "stage bug" {
		t.Errorf("reason = %q", out.Rejected.Reason)
	}
}
