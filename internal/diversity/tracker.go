// Package diversity tracks recently generated titles and tag sets in a
// bounded sliding window and decides whether new candidates repeat the
// recent output too closely. It is a best-effort heuristic: state lives in
// process memory only and is lost on restart.
package diversity

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	// DefaultTitleHistory is how many recent title first-words are kept.
	DefaultTitleHistory = 20
	// DefaultTagHistory is how many recent tag sets are kept.
	DefaultTagHistory = 15

	maxInstructionWords = 5
)

// Tracker records title first-words and tag patterns across all concurrent
// generations. All methods are safe for concurrent use; the lock keeps the
// histories consistent, not the check-then-record sequence (two concurrent
// attempts may both pass the check, which is acceptable).
type Tracker struct {
	mu sync.Mutex

	titleStarts []string
	tagPatterns [][]string
	fullTags    [][]string

	titleCap int
	tagCap   int
}

// NewTracker returns a Tracker with the given history caps. Non-positive caps
// fall back to the defaults.
func NewTracker(titleCap, tagCap int) *Tracker {
	if titleCap <= 0 {
		titleCap = DefaultTitleHistory
	}
	if tagCap <= 0 {
		tagCap = DefaultTagHistory
	}
	return &Tracker{titleCap: titleCap, tagCap: tagCap}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// RecordTitle remembers the title's first word, evicting the oldest entry
// once the window is full.
func (t *Tracker) RecordTitle(title string) {
	word := firstWord(title)
	if word == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.titleStarts = append(t.titleStarts, word)
	if len(t.titleStarts) > t.titleCap {
		t.titleStarts = t.titleStarts[1:]
	}
}

// IsTitleDiverse reports whether the title's first word is still under the
// repetition tolerance (10% of the window, minimum one allowed occurrence).
func (t *Tracker) IsTitleDiverse(title string) bool {
	word := firstWord(title)
	if word == "" {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.titleStarts) == 0 {
		return true
	}

	count := 0
	for _, w := range t.titleStarts {
		if w == word {
			count++
		}
	}

	maxAllowed := t.titleCap / 10
	if maxAllowed < 1 {
		maxAllowed = 1
	}
	return count < maxAllowed
}

// TitleInstruction returns a prompt fragment forbidding currently overused
// starting words, or "" when the history carries too little signal.
func (t *Tracker) TitleInstruction() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.titleStarts) < 3 {
		return ""
	}

	var avoid []string
	for _, e := range topEntries(countOccurrences(t.titleStarts), maxInstructionWords) {
		if e.count > 1 {
			avoid = append(avoid, e.value)
		}
	}
	if len(avoid) == 0 {
		return ""
	}

	return fmt.Sprintf(
		"\n\nDIVERSITY REQUIREMENT: do NOT start the title with these overused words: %s. Use creative, fresh starting words to ensure variety.",
		strings.Join(avoid, ", "),
	)
}

func splitTagPatterns(tags []string) (patterns, full []string) {
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if w := firstWord(tag); w != "" {
			patterns = append(patterns, w)
		}
		if f := strings.ToLower(strings.TrimSpace(tag)); f != "" {
			full = append(full, f)
		}
	}
	return patterns, full
}

// RecordTags remembers both the first-word patterns and the normalized full
// forms of the tag set, evicting the oldest set at capacity.
func (t *Tracker) RecordTags(tags []string) {
	patterns, full := splitTagPatterns(tags)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(patterns) > 0 {
		t.tagPatterns = append(t.tagPatterns, patterns)
		if len(t.tagPatterns) > t.tagCap {
			t.tagPatterns = t.tagPatterns[1:]
		}
	}
	if len(full) > 0 {
		t.fullTags = append(t.fullTags, full)
		if len(t.fullTags) > t.tagCap {
			t.fullTags = t.fullTags[1:]
		}
	}
}

// IsTagsDiverse checks the candidate set against the recorded history: at
// most 20% of its first-words may already be overused (seen twice or more),
// and no exact tag may repeat at all.
func (t *Tracker) IsTagsDiverse(tags []string) bool {
	patterns, full := splitTagPatterns(tags)
	if len(patterns) == 0 && len(full) == 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.tagPatterns) == 0 {
		return true
	}

	patternCounts := countOccurrences(flatten(t.tagPatterns))
	fullCounts := countOccurrences(flatten(t.fullTags))

	overused := 0
	for _, p := range patterns {
		if patternCounts[p] >= 2 {
			overused++
		}
	}
	duplicates := 0
	for _, f := range full {
		if fullCounts[f] >= 1 {
			duplicates++
		}
	}

	maxOverlap := len(patterns) / 5
	if maxOverlap < 1 {
		maxOverlap = 1
	}
	return overused <= maxOverlap && duplicates == 0
}

// TagsInstruction returns a prompt fragment naming overused tag openers and
// exact tags that must not repeat, or "" when the history is too short.
func (t *Tracker) TagsInstruction() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.tagPatterns) < 2 {
		return ""
	}

	var avoidStarts []string
	for _, e := range topEntries(countOccurrences(flatten(t.tagPatterns)), maxInstructionWords) {
		if e.count >= 2 {
			avoidStarts = append(avoidStarts, e.value)
		}
	}
	var avoidExact []string
	for _, e := range topEntries(countOccurrences(flatten(t.fullTags)), maxInstructionWords) {
		avoidExact = append(avoidExact, e.value)
	}

	var b strings.Builder
	if len(avoidStarts) > 0 {
		fmt.Fprintf(&b, "\nAVOID these overused starting words: %s", strings.Join(avoidStarts, ", "))
	}
	if len(avoidExact) > 0 {
		fmt.Fprintf(&b, "\nNEVER repeat these exact tags: %s", strings.Join(avoidExact, ", "))
	}
	if b.Len() == 0 {
		return ""
	}

	return "\n\nTAG DIVERSITY REQUIREMENTS:" + b.String() +
		"\n\nUse synonyms, different word orders, and fresh variations." +
		"\n- Instead of 'relaxing music' try 'calming sounds', 'peaceful melodies', 'soothing audio'" +
		"\n- Instead of 'meditation music' try 'mindfulness sounds', 'zen audio', 'spiritual music'" +
		"\n- Instead of 'sleep music' try 'bedtime sounds', 'night relaxation', 'dream music'"
}

// TitleHistory returns a copy of the recorded title first-words, oldest first.
func (t *Tracker) TitleHistory() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.titleStarts))
	copy(out, t.titleStarts)
	return out
}

func flatten(sets [][]string) []string {
	var out []string
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

func countOccurrences(values []string) map[string]int {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	return counts
}

type entry struct {
	value string
	count int
}

// topEntries returns the n most frequent values, highest count first, with
// ties broken alphabetically for stable output.
func topEntries(counts map[string]int, n int) []entry {
	entries := make([]entry, 0, len(counts))
	for v, c := range counts {
		entries = append(entries, entry{value: v, count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].value < entries[j].value
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
