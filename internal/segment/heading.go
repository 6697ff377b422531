package segment

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Options tunes the heading heuristics.
type Options struct {
	MaxHeadingChars int
	MaxHeadingWords int
	// FontSizeRatio is how much larger than body text a line must be to count as a heading.
	FontSizeRatio float64
}

// DefaultOptions returns the tuning used when nothing is configured.
func DefaultOptions() Options {
	return Options{MaxHeadingChars: 90, MaxHeadingWords: 12, FontSizeRatio: 1.15}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxHeadingChars <= 0 {
		o.MaxHeadingChars = d.MaxHeadingChars
	}
	if o.MaxHeadingWords <= 0 {
		o.MaxHeadingWords = d.MaxHeadingWords
	}
	if o.FontSizeRatio <= 1 {
		o.FontSizeRatio = d.FontSizeRatio
	}
	return o
}

// LineContext describes a line's surroundings.
type LineContext struct {
	BlankBefore  bool
	BlankAfter   bool
	FontSize     float64
	BodyFontSize float64
}

// Isolated is the context of a line surrounded by blank lines with no font data.
var Isolated = LineContext{BlankBefore: true, BlankAfter: true}

// Classification is the classifier verdict for one line.
type Classification struct {
	Heading bool
	Level   int
	// Unit is set when the heading names a course unit ("Unit 3", "UNIT IV").
	Unit *int
}

// a roman numeral after a keyword must end the line or be followed by punctuation or a capitalised word
const romanTail = `(?:\s*[-–:.]|\s*$|\s+(?-i:[A-Z0-9]))`

var (
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(\S.*)$`)
	unitHeading     = regexp.MustCompile(`(?i)^unit(?:\s*[-–:]?\s*([0-9]+)\b|\s+([ivxlc]{1,6})` + romanTail + `)`)
	majorKeyword    = regexp.MustCompile(`(?i)^(unit|chapter|module|part)(?:\s*[-–:]?\s*[0-9]+\b|\s+[ivxlc]{1,6}` + romanTail + `)`)
	minorKeyword    = regexp.MustCompile(`(?i)^(section|lesson|topic)\s+([0-9]+(\.[0-9]+)*|[ivxlc]+)\b`)
	decimalHeading  = regexp.MustCompile(`^([0-9]{1,2}(?:\.[0-9]{1,2})*)\.?\s+(\S.*)$`)
	romanHeading    = regexp.MustCompile(`^([IVXLC]{1,6})\.\s+(\S.*)$`)
	pageMarker      = regexp.MustCompile(`(?i)^(page\s+)?[0-9]+(\s*(of|/)\s*[0-9]+)?$`)
)

var bulletPrefixes = []string{"- ", "* ", "• ", "· ", "–", "○", "▪"}

var minorWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "in": true,
	"on": true, "for": true, "to": true, "with": true, "by": true, "at": true, "vs": true,
	"from": true, "as": true, "into": true,
}

// IsHeading reports whether an isolated line looks like a heading under default options.
func IsHeading(line string) bool {
	return Classify(line, Isolated, DefaultOptions()).Heading
}

// Classify decides whether line is a heading. It is pure and deterministic.
func Classify(line string, lc LineContext, opts Options) Classification {
	opts = opts.withDefaults()
	text := strings.TrimSpace(line)
	if text == "" || len([]rune(text)) > opts.MaxHeadingChars {
		return Classification{}
	}
	for _, prefix := range bulletPrefixes {
		if strings.HasPrefix(text, prefix) {
			return Classification{}
		}
	}
	if pageMarker.MatchString(text) {
		return Classification{}
	}
	words := strings.Fields(text)
	if len(words) > opts.MaxHeadingWords {
		return Classification{}
	}

	if m := markdownHeading.FindStringSubmatch(text); m != nil {
		return withUnit(Classification{Heading: true, Level: len(m[1])}, m[2])
	}
	if endsSentence(text) {
		return Classification{}
	}
	// keyword headings need a layout cue; wrapped body lines can start with "Part 2"
	if lc.BlankBefore || enlarged(lc, opts) {
		if majorKeyword.MatchString(text) {
			return withUnit(Classification{Heading: true, Level: 1}, text)
		}
		if minorKeyword.MatchString(text) {
			return Classification{Heading: true, Level: 2}
		}
	}
	if m := decimalHeading.FindStringSubmatch(text); m != nil && startsUpper(m[2]) && !strings.HasSuffix(text, ":") {
		depth := strings.Count(m[1], ".") + 1
		if depth > 1 || lc.BlankBefore || enlarged(lc, opts) {
			return Classification{Heading: true, Level: depth}
		}
	}
	if m := romanHeading.FindStringSubmatch(text); m != nil && startsUpper(m[2]) {
		return Classification{Heading: true, Level: 1}
	}
	if enlarged(lc, opts) && !strings.HasSuffix(text, ":") {
		level := 2
		if lc.FontSize >= lc.BodyFontSize*1.5 {
			level = 1
		}
		return Classification{Heading: true, Level: level}
	}
	if isAllCaps(text) && !strings.HasSuffix(text, ":") {
		return Classification{Heading: true, Level: 1}
	}
	if lc.BlankBefore && lc.BlankAfter && isTitleCase(words) && !strings.HasSuffix(text, ":") {
		return Classification{Heading: true, Level: 2}
	}
	return Classification{}
}

func withUnit(c Classification, text string) Classification {
	if m := unitHeading.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, ok := parseNumeral(raw); ok {
			c.Unit = &n
		}
	}
	return c
}

func endsSentence(text string) bool {
	last := text[len(text)-1]
	return last == '.' || last == ',' || last == ';' || last == '?' || last == '!'
}

func startsUpper(text string) bool {
	for _, r := range text {
		return unicode.IsUpper(r) || unicode.IsDigit(r)
	}
	return false
}

func enlarged(lc LineContext, opts Options) bool {
	return lc.FontSize > 0 && lc.BodyFontSize > 0 && lc.FontSize >= lc.BodyFontSize*opts.FontSizeRatio
}

func isAllCaps(text string) bool {
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}

func isTitleCase(words []string) bool {
	significant, capitalized := 0, 0
	for i, w := range words {
		core := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if core == "" {
			continue
		}
		if i > 0 && minorWords[strings.ToLower(core)] {
			continue
		}
		significant++
		if startsUpper(core) {
			capitalized++
		} else if i == 0 {
			return false
		}
	}
	if significant == 0 {
		return false
	}
	return float64(capitalized)/float64(significant) >= 0.6
}

var romanValues = map[rune]int{'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100}

// parseNumeral accepts arabic or roman numerals.
func parseNumeral(raw string) (int, bool) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, n > 0
	}
	total, prev := 0, 0
	runes := []rune(strings.ToLower(raw))
	for i := len(runes) - 1; i >= 0; i-- {
		v, ok := romanValues[runes[i]]
		if !ok {
			return 0, false
		}
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total, total > 0
}
