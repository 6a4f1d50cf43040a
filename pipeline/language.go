package pipeline

import "strings"

// Stopword lists for the handful of languages the configured sources
// publish in. Detection scores each language by stopword hits over the
// first few hundred tokens; small and dependency-free beats a full
// n-gram model for this corpus.
var stopwords = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "that", "for", "with", "was", "are", "this"},
	"fr": {"le", "la", "les", "et", "des", "une", "est", "dans", "que", "pour", "qui", "sur"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "mit", "für", "auf", "von"},
	"es": {"el", "la", "los", "las", "que", "por", "una", "con", "para", "del", "más", "como"},
}

const detectSampleSize = 400

// detectLanguage guesses the document language from already-tokenized body
// text. Returns "" when no language clears a minimal score, leaving the
// field empty rather than wrong.
func detectLanguage(words []string) string {
	if len(words) == 0 {
		return ""
	}
	sample := words
	if len(sample) > detectSampleSize {
		sample = sample[:detectSampleSize]
	}

	sets := make(map[string]map[string]bool, len(stopwords))
	for lang, list := range stopwords {
		set := make(map[string]bool, len(list))
		for _, w := range list {
			set[w] = true
		}
		sets[lang] = set
	}

	scores := make(map[string]int, len(stopwords))
	for _, w := range sample {
		w = strings.ToLower(strings.Trim(w, ".,;:!?\"'()[]"))
		for lang, set := range sets {
			if set[w] {
				scores[lang]++
			}
		}
	}

	best, bestScore := "", 0
	for lang, score := range scores {
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	// Require a few hits before committing to a guess.
	if bestScore < 3 {
		return ""
	}
	return best
}
