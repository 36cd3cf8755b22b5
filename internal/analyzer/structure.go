package analyzer

import (
	"fmt"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AxisResult is one scored axis of the structure audit
type AxisResult struct {
	Score  int      `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// StructureAnalysis is the result of AnalyzeHTMLStructure for one page.
// The overall score weights the axes: semantic 20%, headings 25%,
// images 20%, forms 10%, ARIA 15%, lists 5%, tables 5%.
type StructureAnalysis struct {
	Score    int        `json:"score"`
	Semantic AxisResult `json:"semantic"`
	Headings AxisResult `json:"headings"`
	Images   AxisResult `json:"images"`
	Forms    AxisResult `json:"forms"`
	ARIA     AxisResult `json:"aria"`
	Lists    AxisResult `json:"lists"`
	Tables   AxisResult `json:"tables"`
}

// AnalyzeHTMLStructure audits the page's markup quality over a parsed DOM.
// A document that cannot be parsed at all yields a zero-score result rather
// than an error.
func AnalyzeHTMLStructure(html string) *StructureAnalysis {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return &StructureAnalysis{}
	}

	result := &StructureAnalysis{
		Semantic: auditSemanticTags(doc),
		Headings: auditHeadings(doc),
		Images:   auditImages(doc),
		Forms:    auditForms(doc),
		ARIA:     auditARIA(doc),
		Lists:    auditLists(doc),
		Tables:   auditTables(doc),
	}

	weighted := float64(result.Semantic.Score)*0.20 +
		float64(result.Headings.Score)*0.25 +
		float64(result.Images.Score)*0.20 +
		float64(result.Forms.Score)*0.10 +
		float64(result.ARIA.Score)*0.15 +
		float64(result.Lists.Score)*0.05 +
		float64(result.Tables.Score)*0.05
	result.Score = int(math.Round(weighted))

	return result
}

func auditSemanticTags(doc *goquery.Document) AxisResult {
	axis := AxisResult{}
	score := 0
	for _, tag := range []string{"header", "nav", "main", "footer"} {
		if doc.Find(tag).Length() > 0 {
			score += 20
		} else {
			axis.Issues = append(axis.Issues, fmt.Sprintf("no <%s> element", tag))
		}
	}
	if doc.Find("article, aside, section").Length() > 0 {
		score += 20
	} else {
		axis.Issues = append(axis.Issues, "no sectioning content (article/aside/section)")
	}
	axis.Score = score
	return axis
}

func auditHeadings(doc *goquery.Document) AxisResult {
	axis := AxisResult{Score: 100}

	h1Count := doc.Find("h1").Length()
	switch {
	case h1Count == 0:
		axis.Issues = append(axis.Issues, "no h1 heading")
		axis.Score -= 40
	case h1Count > 1:
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d h1 headings, expected one", h1Count))
		axis.Score -= 20
	}

	prev := 0
	skips := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level := int(goquery.NodeName(s)[1] - '0')
		if prev != 0 && level > prev+1 {
			skips++
		}
		prev = level
	})
	if skips > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d skipped heading levels", skips))
		axis.Score -= 15 * skips
	}

	if axis.Score < 0 {
		axis.Score = 0
	}
	return axis
}

func auditImages(doc *goquery.Document) AxisResult {
	axis := AxisResult{Score: 100}

	images := doc.Find("img")
	total := images.Length()
	if total == 0 {
		return axis
	}

	missingAlt, missingDims, eagerBelowFold := 0, 0, 0
	images.Each(func(i int, s *goquery.Selection) {
		if _, ok := s.Attr("alt"); !ok {
			missingAlt++
		}
		_, hasW := s.Attr("width")
		_, hasH := s.Attr("height")
		if !hasW || !hasH {
			missingDims++
		}
		// First images are likely above the fold; later ones should hint lazy
		if loading, _ := s.Attr("loading"); i >= 3 && loading != "lazy" {
			eagerBelowFold++
		}
	})

	if missingAlt > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d of %d images missing alt text", missingAlt, total))
		axis.Score -= int(math.Round(float64(missingAlt) / float64(total) * 50))
	}
	if missingDims > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d of %d images missing width/height", missingDims, total))
		axis.Score -= int(math.Round(float64(missingDims) / float64(total) * 30))
	}
	if eagerBelowFold > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d late images without loading=lazy", eagerBelowFold))
		axis.Score -= 10
	}

	if axis.Score < 0 {
		axis.Score = 0
	}
	return axis
}

func auditForms(doc *goquery.Document) AxisResult {
	axis := AxisResult{Score: 100}

	inputs := doc.Find("input, select, textarea").FilterFunction(func(_ int, s *goquery.Selection) bool {
		t, _ := s.Attr("type")
		t = strings.ToLower(t)
		return t != "hidden" && t != "submit" && t != "button"
	})
	total := inputs.Length()
	if total == 0 {
		return axis
	}

	unlabeled := 0
	inputs.Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("aria-label"); ok {
			return
		}
		if _, ok := s.Attr("aria-labelledby"); ok {
			return
		}
		if s.ParentsFiltered("label").Length() > 0 {
			return
		}
		if id, ok := s.Attr("id"); ok && id != "" {
			if doc.Find(fmt.Sprintf(`label[for=%q]`, id)).Length() > 0 {
				return
			}
		}
		unlabeled++
	})

	if unlabeled > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d of %d form controls without a label", unlabeled, total))
		axis.Score -= int(math.Round(float64(unlabeled) / float64(total) * 100))
	}
	if axis.Score < 0 {
		axis.Score = 0
	}
	return axis
}

func auditARIA(doc *goquery.Document) AxisResult {
	axis := AxisResult{Score: 100}

	hasLandmark := doc.Find("main, nav, header, footer").Length() > 0 ||
		doc.Find(`[role="main"], [role="navigation"], [role="banner"], [role="contentinfo"]`).Length() > 0
	if !hasLandmark {
		axis.Issues = append(axis.Issues, "no landmark regions")
		axis.Score -= 30
	}

	nameless := 0
	doc.Find("a, button").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) != "" {
			return
		}
		if _, ok := s.Attr("aria-label"); ok {
			return
		}
		if _, ok := s.Attr("aria-labelledby"); ok {
			return
		}
		if s.Find("img[alt]").Length() > 0 {
			return
		}
		nameless++
	})
	if nameless > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d interactive elements without an accessible name", nameless))
		axis.Score -= 10 * nameless
	}

	if axis.Score < 0 {
		axis.Score = 0
	}
	return axis
}

func auditLists(doc *goquery.Document) AxisResult {
	axis := AxisResult{Score: 100}

	badLists := 0
	doc.Find("ul, ol").Each(func(_ int, s *goquery.Selection) {
		if s.ChildrenFiltered("li").Length() == 0 {
			badLists++
		}
	})
	if badLists > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d lists without list items", badLists))
		axis.Score -= 25 * badLists
	}

	nav := doc.Find("nav")
	if nav.Length() > 0 && nav.Find("ul, ol").Length() == 0 {
		axis.Issues = append(axis.Issues, "navigation without a list structure")
		axis.Score -= 15
	}

	if axis.Score < 0 {
		axis.Score = 0
	}
	return axis
}

func auditTables(doc *goquery.Document) AxisResult {
	axis := AxisResult{Score: 100}

	headerless, captionless := 0, 0
	doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		if s.Find("th").Length() == 0 && s.Find("thead").Length() == 0 {
			headerless++
		}
		if s.Find("caption").Length() == 0 {
			captionless++
		}
	})
	if headerless > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d tables without header cells", headerless))
		axis.Score -= 30 * headerless
	}
	if captionless > 0 {
		axis.Issues = append(axis.Issues, fmt.Sprintf("%d tables without a caption", captionless))
		axis.Score -= 10 * captionless
	}

	if axis.Score < 0 {
		axis.Score = 0
	}
	return axis
}
