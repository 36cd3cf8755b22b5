// Package analyzer provides pure, deterministic audits over raw HTML.
// Extraction for SEO, link and tracking heuristics is regex based; the
// structure audit parses a DOM. Analyzers never return errors for malformed
// input, they degrade to absent fields.
package analyzer

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
)

// SeoAnalysis is the result of AnalyzeSEO for one page
type SeoAnalysis struct {
	Title           string             `json:"title,omitempty"`
	MetaDescription string             `json:"metaDescription,omitempty"`
	Canonical       string             `json:"canonical,omitempty"`
	H1              *string            `json:"h1,omitempty"`
	RobotsNoindex   bool               `json:"robotsNoindex"`
	SchemaOrg       json.RawMessage    `json:"schemaOrg,omitempty"`
	H1Quality       H1Quality          `json:"h1Quality"`
	JSONLD          *JSONLDAnalysis    `json:"jsonLd,omitempty"`
	Structure       *StructureAnalysis `json:"htmlStructure,omitempty"`
	Score           int                `json:"score"`
}

var (
	titleRe     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaDescRe  = regexp.MustCompile(`(?is)<meta[^>]+name\s*=\s*["']description["'][^>]*>`)
	metaRobots  = regexp.MustCompile(`(?is)<meta[^>]+name\s*=\s*["']robots["'][^>]*>`)
	canonicalRe = regexp.MustCompile(`(?is)<link[^>]+rel\s*=\s*["']canonical["'][^>]*>`)
	h1Re        = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	ldJSONRe    = regexp.MustCompile(`(?is)<script[^>]+type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)
	contentAttr = regexp.MustCompile(`(?is)content\s*=\s*["']([^"']*)["']`)
	hrefAttr    = regexp.MustCompile(`(?is)href\s*=\s*["']([^"']*)["']`)
	tagStripRe  = regexp.MustCompile(`(?s)<[^>]*>`)
)

// AnalyzeSEO extracts the page's SEO fields from raw HTML and scores them.
// The composite score starts at 100 and loses points per missing field plus
// a scaled H1-quality penalty.
func AnalyzeSEO(html string) *SeoAnalysis {
	result := &SeoAnalysis{}

	if m := titleRe.FindStringSubmatch(html); m != nil {
		result.Title = cleanText(m[1])
	}
	if m := metaDescRe.FindString(html); m != "" {
		if c := contentAttr.FindStringSubmatch(m); c != nil {
			result.MetaDescription = strings.TrimSpace(c[1])
		}
	}
	if m := canonicalRe.FindString(html); m != "" {
		if c := hrefAttr.FindStringSubmatch(m); c != nil {
			result.Canonical = strings.TrimSpace(c[1])
		}
	}
	if m := metaRobots.FindString(html); m != "" {
		if c := contentAttr.FindStringSubmatch(m); c != nil {
			result.RobotsNoindex = strings.Contains(strings.ToLower(c[1]), "noindex")
		}
	}
	if m := h1Re.FindStringSubmatch(html); m != nil {
		raw := m[1]
		result.H1 = &raw
	}

	if m := ldJSONRe.FindStringSubmatch(html); m != nil {
		raw := strings.TrimSpace(m[1])
		if json.Valid([]byte(raw)) {
			result.SchemaOrg = json.RawMessage(raw)
		} else if quoted, err := json.Marshal(raw); err == nil {
			// Unparseable block kept as its raw text
			result.SchemaOrg = quoted
		}
	}

	result.H1Quality = ScoreH1(result.H1, result.Title)
	result.Score = scoreSeo(result)

	return result
}

func scoreSeo(seo *SeoAnalysis) int {
	score := 100
	if seo.Title == "" {
		score -= 30
	}
	if seo.MetaDescription == "" {
		score -= 20
	}
	if seo.Canonical == "" {
		score -= 10
	}
	if seo.RobotsNoindex {
		score -= 20
	}
	if len(seo.SchemaOrg) == 0 {
		score -= 5
	}
	score -= int(math.Round(float64(100-seo.H1Quality.Score) * 0.2))
	if score < 0 {
		score = 0
	}
	return score
}

// cleanText strips tags, decodes the common entities and collapses whitespace
func cleanText(s string) string {
	s = tagStripRe.ReplaceAllString(s, " ")
	replacer := strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
	s = replacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
