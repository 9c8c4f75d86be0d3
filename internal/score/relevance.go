package score

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

const (
	// MinTextLength is the shortest trimmed text worth scoring
	MinTextLength = 100
	// NameWindow is how many leading characters count as "early" for the name bonus
	NameWindow = 300
	// MaxIrrelevant rejects text with at least this many boilerplate hits
	MaxIrrelevant = 2
	// MinPoints is the relevance score required to accept
	MinPoints = 2
)

// Theme is one group of relevant phrasing
type Theme string

const (
	ThemeImpact       Theme = "impact"
	ThemeDiscovery    Theme = "discovery"
	ThemeScience      Theme = "science"
	ThemeSignificance Theme = "significance"
)

type themePattern struct {
	theme   Theme
	pattern *regexp.Regexp
}

var themes = []themePattern{
	{ThemeImpact, regexp.MustCompile(`(?i)(impact(ed|ing)?|cause(d)? (a )?(damage|change|shock|event|fire|explosion|impact)|` +
		`impact (area|zone|site)|impact effect|blast wave|crater formation|` +
		`released energy|energy of impact|impact velocity|entry velocity|angle of impact|` +
		`impact magnitude|airburst|collision energy)`)},
	{ThemeDiscovery, regexp.MustCompile(`(?i)(discovered in|was discovered|originated from|formed in|composition of|parent body|source asteroid|` +
		`was part of|fragmented from|classified as|recovered in|meteorite classification|` +
		`scientists (believe|suggest)|studies (show|indicate)|analysis revealed)`)},
	{ThemeScience, regexp.MustCompile(`(?i)(velocity of|speed of entry|temperature reached|pressure impact|shock stage|` +
		`kinetic energy|mass of the meteorite|density|fusion crust|matrix|chondrules|` +
		`chemical composition|structure|grain size|surface features|melting point)`)},
	{ThemeSignificance, regexp.MustCompile(`(?i)(news report|witnessed event|documented fall|reported by|observed fall|` +
		`impact caused|caused panic|injured|destroyed|hit the ground|` +
		`economic impact|affected the region|changed the landscape)`)},
}

// irrelevantPattern matches coordinate-only and retail vocabulary as whole words
var irrelevantPattern = regexp.MustCompile(`(?i)\b(found in|located in|coordinates|latitude|longitude|` +
	`copyright|newsletter|subscribe|buy|price|store|shop|review|discount|` +
	`collection|museum piece|sold by|available for sale)\b`)

// Verdict explains a relevance decision
type Verdict struct {
	Relevant    bool
	Reason      string
	Themes      []Theme
	Irrelevant  int
	NamePresent bool
	NameEarly   bool
	Points      int
}

// RelevanceFilter decides whether retrieved text justifies a generation call.
// It holds no state and is safe for concurrent use.
type RelevanceFilter struct{}

// NewRelevanceFilter creates a filter
func NewRelevanceFilter() *RelevanceFilter {
	return &RelevanceFilter{}
}

// IsRelevant reports whether text is worth sending to the model for the named record
func (f *RelevanceFilter) IsRelevant(text, name string) bool {
	return f.Evaluate(text, name).Relevant
}

// Evaluate scores text and returns the full verdict
func (f *RelevanceFilter) Evaluate(text, name string) Verdict {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < MinTextLength {
		return Verdict{Reason: "text too short"}
	}

	var v Verdict

	v.Irrelevant = len(irrelevantPattern.FindAllStringIndex(trimmed, -1))
	if v.Irrelevant >= MaxIrrelevant {
		v.Reason = "boilerplate content"
		return v
	}

	for _, tp := range themes {
		if tp.pattern.MatchString(trimmed) {
			v.Themes = append(v.Themes, tp.theme)
		}
	}
	v.Points = len(v.Themes)

	if token := nameToken(name); token != "" {
		// Casers carry state, so each evaluation gets its own.
		fold := cases.Fold()
		needle := fold.String(token)
		if indexWord(fold.String(trimmed), needle) >= 0 {
			v.NamePresent = true
			// The window is cut from the source text; folding may change its length.
			if indexWord(fold.String(leading(trimmed, NameWindow)), needle) >= 0 {
				v.NameEarly = true
				v.Points++
			}
		}
	}

	switch {
	case !v.NamePresent:
		v.Reason = "name not mentioned"
	case v.Points < MinPoints:
		v.Reason = "not enough relevant themes"
	default:
		v.Relevant = true
		v.Reason = "relevant"
	}
	return v
}

// nameToken returns the first whitespace-delimited token of a record name
func nameToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// leading returns the first n runes of s. A word cut by the boundary is dropped.
func leading(s string, n int) string {
	i := 0
	for count := 0; i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	if i >= len(s) {
		return s
	}
	head := s[:i]
	if r, _ := utf8.DecodeRuneInString(s[i:]); isWordRune(r) {
		head = strings.TrimRightFunc(head, isWordRune)
	}
	return head
}

// indexWord returns the byte offset of the first whole-word occurrence of needle in s, or -1
func indexWord(s, needle string) int {
	offset := 0
	for {
		i := strings.Index(s[offset:], needle)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(needle)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return start
		}
		offset = start + 1
		// step to the next rune start
		for offset < len(s) && !utf8.RuneStart(s[offset]) {
			offset++
		}
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
