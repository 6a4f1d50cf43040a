package pipeline

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"policylens/config"
	"policylens/types"
)

const excerptLength = 280

// ValidateStage checks required fields before anything else touches the
// item. Rejection reasons are stable tags of the form missing_field:<name>
// or invalid_field:<name>.
func ValidateStage() Stage {
	return Stage{
		Name: "validate",
		Run: func(item types.Item) (types.Item, error) {
			required := []struct {
				name  string
				value string
			}{
				{"canonical_url", item.CanonicalURL},
				{"source_name", item.SourceName},
				{"content_hash", item.ContentHash},
				{"title", item.Title},
				{"body_text", item.BodyText},
			}
			for _, field := range required {
				if strings.TrimSpace(field.value) == "" {
					return item, Reject("missing_field:" + field.name)
				}
			}
			if item.FetchedAt.IsZero() {
				return item, Reject("missing_field:fetched_at")
			}
			if !utf8.ValidString(item.BodyText) {
				return item, Reject("invalid_field:body_text")
			}
			return item, nil
		},
	}
}

// NormalizeStage canonicalizes text and timestamps: whitespace collapsed,
// control characters stripped, publish dates parsed into UTC. A publish date
// the source provided but we cannot parse is an invalid_field rejection; a
// missing one falls back to the fetch time.
func NormalizeStage() Stage {
	return Stage{
		Name: "normalize",
		Run: func(item types.Item) (types.Item, error) {
			item.Title = collapseSpace(item.Title)
			item.Author = collapseSpace(item.Author)
			item.Summary = collapseSpace(item.Summary)
			item.BodyText = collapseSpace(stripControl(item.BodyText))

			if item.PublishedAt.IsZero() && item.PublishedRaw != "" {
				ts, err := dateparse.ParseAny(item.PublishedRaw)
				if err != nil {
					return item, Reject("invalid_field:published_at")
				}
				item.PublishedAt = ts
			}
			if item.PublishedAt.IsZero() {
				item.PublishedAt = item.FetchedAt
			}
			item.PublishedAt = item.PublishedAt.UTC()
			item.FetchedAt = item.FetchedAt.UTC()
			return item, nil
		},
	}
}

// EnrichStage derives fields that need no external calls: detected language,
// word count, and a short excerpt.
func EnrichStage() Stage {
	return Stage{
		Name: "enrich",
		Run: func(item types.Item) (types.Item, error) {
			words := strings.Fields(item.BodyText)
			item.WordCount = len(words)
			item.Language = detectLanguage(words)
			if item.Excerpt == "" {
				item.Excerpt = makeExcerpt(item.BodyText)
			}
			return item, nil
		},
	}
}

// Policy holds the inclusion/exclusion rules for the final stage. Now is
// injectable so staleness checks are deterministic in tests.
type Policy struct {
	DisallowedSources []string
	MaxPublishAge     time.Duration
	MinBodyWords      int
	Now               func() time.Time
}

func (p Policy) withDefaults() Policy {
	if p.MaxPublishAge <= 0 {
		p.MaxPublishAge = config.MaxPublishAge
	}
	if p.MinBodyWords <= 0 {
		p.MinBodyWords = config.MinBodyWords
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

// PolicyStage drops items violating the configured rules. It runs last so
// every rejection here refers to a fully normalized item.
func PolicyStage(policy Policy) Stage {
	p := policy.withDefaults()
	return Stage{
		Name: "policy",
		Run: func(item types.Item) (types.Item, error) {
			for _, source := range p.DisallowedSources {
				if strings.EqualFold(source, item.SourceName) {
					return item, Reject("disallowed_source:" + item.SourceName)
				}
			}
			if item.WordCount < p.MinBodyWords {
				return item, Reject(fmt.Sprintf("body_too_short:%d", item.WordCount))
			}
			if p.Now().UTC().Sub(item.PublishedAt) > p.MaxPublishAge {
				return item, Reject("stale_publish_date")
			}
			return item, nil
		},
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

func makeExcerpt(text string) string {
	if len(text) <= excerptLength {
		return text
	}
	// Back up to a rune boundary so the cut never splits a multibyte
	// character.
	end := excerptLength
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	cut := text[:end]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
