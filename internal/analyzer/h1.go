package analyzer

import (
	"regexp"
	"strings"
)

// H1Quality is the weighted breakdown of the page's first H1.
// Sub-scores carry fixed weights: existence 15, length 15, keyword 25,
// content 20, UX 15, technical 10. The total is clamped to [0,100].
type H1Quality struct {
	Score     int      `json:"score"`
	Existence int      `json:"existence"`
	Length    int      `json:"length"`
	Keyword   int      `json:"keyword"`
	Content   int      `json:"content"`
	UX        int      `json:"ux"`
	Technical int      `json:"technical"`
	Issues    []string `json:"issues,omitempty"`
}

var (
	genericH1Phrases = []string{
		"welcome", "home", "homepage", "untitled", "lorem ipsum",
		"hello world", "new page", "index",
	}
	actionValueWords = []string{
		"get", "find", "learn", "discover", "build", "create", "improve",
		"free", "best", "guide", "how", "why", "top", "easy", "fast",
	}
	trailingFragmentWords = map[string]bool{
		"and": true, "or": true, "the": true, "a": true, "an": true,
		"of": true, "for": true, "to": true, "with": true,
	}
	svgOrImgRe   = regexp.MustCompile(`(?i)<(svg|img)\b`)
	nestedTagsRe = regexp.MustCompile(`(?s)<[a-zA-Z][^>]*>`)
)

// ScoreH1 rates the raw (possibly tag-bearing) H1 text against the page
// title. A nil H1 scores 0 with only the existence axis reported; an H1
// that is empty once tags are stripped also scores 0.
func ScoreH1(rawH1 *string, title string) H1Quality {
	if rawH1 == nil {
		return H1Quality{Issues: []string{"no h1 element found"}}
	}

	text := cleanText(*rawH1)
	if text == "" {
		return H1Quality{Issues: []string{"h1 has no readable text"}}
	}

	q := H1Quality{}
	q.Existence = 15
	q.Length = scoreH1Length(text, &q.Issues)
	q.Keyword = scoreH1Keyword(text, title, &q.Issues)
	q.Content = scoreH1Content(text, &q.Issues)
	q.UX = scoreH1UX(text, &q.Issues)
	q.Technical = scoreH1Technical(*rawH1, &q.Issues)

	total := q.Existence + q.Length + q.Keyword + q.Content + q.UX + q.Technical
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	q.Score = total
	return q
}

// scoreH1Length awards the full 15 points for 20..70 characters
func scoreH1Length(text string, issues *[]string) int {
	n := len([]rune(text))
	switch {
	case n >= 20 && n <= 70:
		return 15
	case n >= 10 && n < 20:
		*issues = append(*issues, "h1 is short")
		return 10
	case n > 70 && n <= 100:
		*issues = append(*issues, "h1 is long")
		return 10
	case n >= 5 && n < 10:
		*issues = append(*issues, "h1 is very short")
		return 5
	default:
		*issues = append(*issues, "h1 length far outside optimal range")
		return 3
	}
}

// scoreH1Keyword compares the H1 wording against the title: shared terms,
// how early the first shared term appears, term density, and whether the
// heading reads as a long-tail phrase.
func scoreH1Keyword(text, title string, issues *[]string) int {
	h1Words := significantWords(text)
	if title == "" || len(h1Words) == 0 {
		return 10
	}
	titleWords := significantWords(title)
	titleSet := map[string]bool{}
	for _, w := range titleWords {
		titleSet[w] = true
	}

	overlap := 0
	firstMatch := -1
	for i, w := range h1Words {
		if titleSet[w] {
			overlap++
			if firstMatch == -1 {
				firstMatch = i
			}
		}
	}

	score := 0
	if overlap > 0 {
		// Up to 12 points for overlap share
		ratio := float64(overlap) / float64(len(titleWords))
		if ratio > 1 {
			ratio = 1
		}
		score += int(ratio * 12)
		// Up to 5 points for an early first match
		if firstMatch == 0 {
			score += 5
		} else if firstMatch <= 2 {
			score += 3
		}
	} else {
		*issues = append(*issues, "h1 shares no terms with the title")
	}

	// 4 points when terms are not stuffed (no word over a third of the text)
	if maxWordShare(h1Words) <= 0.34 {
		score += 4
	} else {
		*issues = append(*issues, "h1 repeats a term heavily")
	}

	// 4 points for a long-tail phrase
	if len(h1Words) >= 4 {
		score += 4
	}

	if score > 25 {
		score = 25
	}
	return score
}

func scoreH1Content(text string, issues *[]string) int {
	lower := strings.ToLower(text)
	score := 20

	for _, phrase := range genericH1Phrases {
		if lower == phrase || strings.HasPrefix(lower, phrase+" ") && len(significantWords(text)) <= 2 {
			*issues = append(*issues, "h1 uses a generic phrase")
			score -= 10
			break
		}
	}

	words := strings.Fields(lower)
	if len(words) > 0 {
		last := strings.Trim(words[len(words)-1], ".,;:")
		if trailingFragmentWords[last] || strings.HasSuffix(lower, "...") {
			*issues = append(*issues, "h1 looks like an incomplete phrase")
			score -= 6
		}
	}

	hasAction := false
	for _, w := range words {
		if containsWord(actionValueWords, strings.Trim(w, ".,!?")) {
			hasAction = true
			break
		}
	}
	if !hasAction {
		score -= 4
	}

	if score < 0 {
		score = 0
	}
	return score
}

func scoreH1UX(text string, issues *[]string) int {
	score := 15
	words := strings.Fields(strings.ToLower(text))

	seen := map[string]int{}
	for _, w := range words {
		w = strings.Trim(w, ".,!?")
		if len(w) < 3 {
			continue
		}
		seen[w]++
		if seen[w] == 2 {
			*issues = append(*issues, "h1 repeats a word")
			score -= 5
			break
		}
	}

	letters, uppers := 0, 0
	for _, r := range text {
		if r >= 'A' && r <= 'Z' {
			uppers++
			letters++
		} else if r >= 'a' && r <= 'z' {
			letters++
		}
	}
	if letters > 0 && float64(uppers)/float64(letters) > 0.7 {
		*issues = append(*issues, "h1 is mostly uppercase")
		score -= 5
	}

	if len(words) > 12 {
		*issues = append(*issues, "h1 is hard to scan")
		score -= 3
	}

	if score < 0 {
		score = 0
	}
	return score
}

func scoreH1Technical(rawH1 string, issues *[]string) int {
	score := 10
	if svgOrImgRe.MatchString(rawH1) {
		*issues = append(*issues, "h1 contains svg or image markup")
		score -= 6
	}
	if len(nestedTagsRe.FindAllString(rawH1, -1)) > 2 {
		*issues = append(*issues, "h1 markup is deeply nested")
		score -= 4
	}
	if score < 0 {
		score = 0
	}
	return score
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "to": true, "for": true, "with": true, "is": true,
	"at": true, "by": true, "your": true, "our": true,
}

func significantWords(text string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func maxWordShare(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	counts := map[string]int{}
	max := 0
	for _, w := range words {
		counts[w]++
		if counts[w] > max {
			max = counts[w]
		}
	}
	return float64(max) / float64(len(words))
}

func containsWord(list []string, w string) bool {
	for _, item := range list {
		if item == w {
			return true
		}
	}
	return false
}
