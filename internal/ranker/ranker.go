// Package ranker orders notes by how well their name and content match a
// search query.
package ranker

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"

	"github.com/starford/gitnote/internal/models"
)

// MinScore is the default threshold below which matches are dropped.
const MinScore = 50

// partialWeight scales near-miss token matches below exact substrings.
const partialWeight = 0.9

// Score rates text against query on a 0-100 scale. Matching is
// case-insensitive; a query contained in text scores 100.
func Score(query, text string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	t := strings.ToLower(text)
	if strings.Contains(t, q) {
		return 100
	}

	best := 0
	qLen := utf8.RuneCountInString(q)
	if utf8.RuneCountInString(t) <= 2*qLen {
		best = ratio(q, t)
	}

	words := tokens(t)
	width := max(len(tokens(q)), 1)
	for i := range words {
		end := min(i+width, len(words))
		if s := int(partialWeight * float64(ratio(q, strings.Join(words[i:end], " ")))); s > best {
			best = s
		}
		if best >= 90 {
			break
		}
	}
	return best
}

// ratio is the Levenshtein similarity of a and b in percent.
func ratio(a, b string) int {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return 100 * (longest - d) / longest
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Result is a ranked note.
type Result struct {
	Note  models.Note
	Score int
	// ByName is set when the note was ranked for its name.
	ByName bool
	// Highlights are match positions in the note name, see Highlight.
	Highlights []int
}

// Ranker merges name and content rankings.
type Ranker struct {
	MinScore int
}

// Default uses MinScore.
var Default = Ranker{MinScore: MinScore}

type candidate struct {
	idx   int
	score int
}

func rankBy(query string, notes []models.Note, text func(models.Note) string) []candidate {
	out := make([]candidate, len(notes))
	for i, n := range notes {
		out[i] = candidate{idx: i, score: Score(query, text(n))}
	}
	slices.SortStableFunc(out, func(a, b candidate) int {
		return cmp.Compare(b.score, a.score)
	})
	return out
}

// Rank scores every note by name (without extension) and by content, then
// merges both rankings, strongest first. On equal scores the name ranking
// goes first. Each note appears at most once and never below the threshold.
func (r Ranker) Rank(query string, notes []models.Note) []Result {
	out := make([]Result, 0)
	if len(notes) == 0 || strings.TrimSpace(query) == "" {
		return out
	}
	byName := rankBy(query, notes, models.Note.NameWithoutExtension)
	byContent := rankBy(query, notes, func(n models.Note) string { return n.Content })

	emitted := make([]bool, len(notes))
	add := func(c candidate, name bool) {
		if c.score < r.MinScore || emitted[c.idx] {
			return
		}
		emitted[c.idx] = true
		out = append(out, Result{Note: notes[c.idx], Score: c.score, ByName: name})
	}

	i, j := 0, 0
	for i < len(byName) && j < len(byContent) {
		if byName[i].score >= byContent[j].score {
			add(byName[i], true)
			i++
		} else {
			add(byContent[j], false)
			j++
		}
	}
	for ; i < len(byName); i++ {
		add(byName[i], true)
	}
	for ; j < len(byContent); j++ {
		add(byContent[j], false)
	}
	return out
}

// Rank ranks notes with the default threshold.
func Rank(query string, notes []models.Note) []models.Note {
	results := Default.Rank(query, notes)
	out := make([]models.Note, len(results))
	for i, res := range results {
		out[i] = res.Note
	}
	return out
}

type nameSource []Result

func (s nameSource) String(i int) string { return s[i].Note.NameWithoutExtension() }
func (s nameSource) Len() int            { return len(s) }

// Highlight fills in the positions of the query characters in each result
// name, as reported by sahilm/fuzzy. Names that do not contain the query as
// a subsequence keep no highlights.
func Highlight(query string, results []Result) {
	if query == "" {
		return
	}
	for _, m := range fuzzy.FindFrom(query, nameSource(results)) {
		results[m.Index].Highlights = m.MatchedIndexes
	}
}
