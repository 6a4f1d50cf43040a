package pipeline

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"policylens/types"
)

func validItem() types.Item {
	return types.Item{
		SourceName:   "bbc_news",
		URL:          "https://example.com/post",
		CanonicalURL: "https://example.com/post",
		ContentHash:  types.HashContent("body"),
		Title:        "AI  Act\tadopted",
		BodyText:     strings.Repeat("the council adopted the new regulation today ", 10),
		FetchedAt:    time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		PublishedAt:  time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestValidateStageMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*types.Item)
		reason string
	}{
		{"missing url", func(i *types.Item) { i.CanonicalURL = "" }, "missing_field:canonical_url"},
		{"missing source", func(i *types.Item) { i.SourceName = " " }, "missing_field:source_name"},
		{"missing hash", func(i *types.Item) { i.ContentHash = "" }, "missing_field:content_hash"},
		{"missing title", func(i *types.Item) { i.Title = "" }, "missing_field:title"},
		{"missing body", func(i *types.Item) { i.BodyText = "" }, "missing_field:body_text"},
		{"missing fetched_at", func(i *types.Item) { i.FetchedAt = time.Time{} }, "missing_field:fetched_at"},
		{"invalid utf8 body", func(i *types.Item) { i.BodyText = "abc\xff\xfe" }, "invalid_field:body_text"},
	}

	stage := ValidateStage()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := validItem()
			tc.mutate(&item)
			_, err := stage.Run(item)
			rej, ok := err.(*Rejection)
			if !ok {
				t.Fatalf("expected rejection, got %v", err)
			}
			if rej.Reason != tc.reason {
				t.Errorf("reason = %q, want %q", rej.Reason, tc.reason)
			}
		})
	}
}

func TestValidateStageAcceptsCompleteItem(t *testing.T) {
	if _, err := ValidateStage().Run(validItem()); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestNormalizeStage(t *testing.T) {
	item := validItem()
	item.Title = "  AI  Act \n adopted  "
	item.BodyText = "para one\x00\x08 with\tcontrol  chars"
	item.PublishedAt = time.Time{}
	item.PublishedRaw = "2026-08-19T09:00:00Z"

	out, err := NormalizeStage().Run(item)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if out.Title != "AI Act adopted" {
		t.Errorf("title = %q", out.Title)
	}
	if strings.ContainsAny(out.BodyText, "\x00\x08") {
		t.Errorf("control chars survived: %q", out.BodyText)
	}
	want := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)
	if !out.PublishedAt.Equal(want) {
		t.Errorf("published_at = %v, want %v", out.PublishedAt, want)
	}
	if out.PublishedAt.Location() != time.UTC {
		t.Errorf("published_at not UTC: %v", out.PublishedAt.Location())
	}
}

func TestNormalizeStageRejectsUnparseableDate(t *testing.T) {
	item := validItem()
	item.PublishedAt = time.Time{}
	item.PublishedRaw = "sometime last spring"

	_, err := NormalizeStage().Run(item)
	rej, ok := err.(*Rejection)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rej.Reason != "invalid_field:published_at" {
		t.Errorf("reason = %q", rej.Reason)
	}
}

func TestNormalizeStageFallsBackToFetchTime(t *testing.T) {
	item := validItem()
	item.PublishedAt = time.Time{}
	item.PublishedRaw = ""

	out, err := NormalizeStage().Run(item)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if !out.PublishedAt.Equal(item.FetchedAt) {
		t.Errorf("published_at = %v, want fetch time %v", out.PublishedAt, item.FetchedAt)
	}
}

func TestEnrichStage(t *testing.T) {
	item := validItem()
	item.BodyText = strings.TrimSpace(strings.Repeat("the of and to in is was for on that ", 20))

	out, err := EnrichStage().Run(item)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if out.WordCount != 200 {
		t.Errorf("word count = %d, want 200", out.WordCount)
	}
	if out.Language != "en" {
		t.Errorf("language = %q, want en", out.Language)
	}
	if out.Excerpt == "" {
		t.Errorf("excerpt is empty")
	}
	if len(out.Excerpt) > excerptLength+len("…") {
		t.Errorf("excerpt too long: %d", len(out.Excerpt))
	}
}

func TestMakeExcerptCutsOnRuneBoundary(t *testing.T) {
	// Unbroken multibyte text forces the cut to land mid-rune unless the
	// excerpt backs up to a boundary.
	text := strings.Repeat("仮想通貨の規制枠組み", 40)

	got := makeExcerpt(text)
	if !utf8.ValidString(got) {
		t.Errorf("excerpt is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("excerpt missing ellipsis: %q", got)
	}
	if len(got) > excerptLength+len("…") {
		t.Errorf("excerpt too long: %d", len(got))
	}
}

func TestPolicyStage(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) }

	t.Run("disallowed source", func(t *testing.T) {
		stage := PolicyStage(Policy{DisallowedSources: []string{"bbc_news"}, Now: now})
		item := validItem()
		item.WordCount = 100
		_, err := stage.Run(item)
		if rej, ok := err.(*Rejection); !ok || rej.Reason != "disallowed_source:bbc_news" {
			t.Errorf("got %v", err)
		}
	})

	t.Run("body too short", func(t *testing.T) {
		stage := PolicyStage(Policy{MinBodyWords: 40, Now: now})
		item := validItem()
		item.WordCount = 5
		_, err := stage.Run(item)
		if rej, ok := err.(*Rejection); !ok || rej.Reason != "body_too_short:5" {
			t.Errorf("got %v", err)
		}
	})

	t.Run("stale publish date", func(t *testing.T) {
		stage := PolicyStage(Policy{MaxPublishAge: 24 * time.Hour, Now: now})
		item := validItem()
		item.WordCount = 100
		item.PublishedAt = now().Add(-48 * time.Hour)
		_, err := stage.Run(item)
		if rej, ok := err.(*Rejection); !ok || rej.Reason != "stale_publish_date" {
			t.Errorf("got %v", err)
		}
	})

	t.Run("fresh item passes", func(t *testing.T) {
		stage := PolicyStage(Policy{Now: now})
		item := validItem()
		item.WordCount = 100
		if _, err := stage.Run(item); err != nil {
			t.Errorf("unexpected rejection: %v", err)
		}
	})
}
