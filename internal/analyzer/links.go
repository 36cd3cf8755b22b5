package analyzer

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/models"
)

// HeadingRef locates the heading an anchor sits under
type HeadingRef struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// LinkExample is one notable anchor: internal without UTM tagging, or any
// anchor carrying UTM parameters.
type LinkExample struct {
	URL           string               `json:"url"`
	Params        map[string]string    `json:"params,omitempty"`
	Text          string               `json:"text,omitempty"`
	Heading       *HeadingRef          `json:"heading,omitempty"`
	DeviceVariant models.DeviceVariant `json:"deviceVariant,omitempty"`
}

// UTMSummary rolls up UTM tagging over a page's anchors
type UTMSummary struct {
	TrackedLinks int           `json:"trackedLinks"`
	MissingUTM   int           `json:"missingUtm"`
	Examples     []LinkExample `json:"examples,omitempty"`
}

// LinkAnalysis is the result of AnalyzeLinks for one page
type LinkAnalysis struct {
	InternalLinks  int        `json:"internalLinks"`
	ExternalLinks  int        `json:"externalLinks"`
	UTM            UTMSummary `json:"utmSummary"`
	DiscoveredURLs []string   `json:"discoveredUrls,omitempty"`
}

// maxDiscoveredURLs bounds the internal URLs reported per page so one giant
// index page cannot flood the crawl frontier.
const maxDiscoveredURLs = 200

var (
	anchorRe     = regexp.MustCompile(`(?is)<a\b([^>]*)>(.*?)</a>`)
	headingPosRe = regexp.MustCompile(`(?is)<(h[123])[^>]*>(.*?)</h[123]>`)
	attrRe       = regexp.MustCompile(`(?is)([a-zA-Z][a-zA-Z0-9_-]*)\s*=\s*["']([^"']*)["']`)
)

var deviceKeywords = map[models.DeviceVariant][]string{
	models.DeviceDesktop: {"desktop", "laptop", "pc"},
	models.DeviceTablet:  {"tablet", "ipad"},
	models.DeviceMobile:  {"mobile", "phone", "iphone", "android"},
}

// AnalyzeLinks scans anchors in document order, classifying each as internal
// or external against baseURL, extracting UTM parameters, and attributing
// each anchor to the last h1..h3 seen at or before it in the source.
func AnalyzeLinks(html, baseURL string) *LinkAnalysis {
	result := &LinkAnalysis{}

	headings := headingPosRe.FindAllStringSubmatchIndex(html, -1)
	headingIdx := -1

	seen := map[string]bool{}

	for _, loc := range anchorRe.FindAllStringSubmatchIndex(html, -1) {
		attrs := parseAttrs(html[loc[2]:loc[3]])
		text := cleanText(html[loc[4]:loc[5]])

		href, ok := attrs["href"]
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}

		// Advance the heading pointer to the last heading before this anchor
		for headingIdx+1 < len(headings) && headings[headingIdx+1][0] <= loc[0] {
			headingIdx++
		}

		resolved, err := common.ResolveURL(baseURL, href)
		if err != nil {
			continue
		}

		internal := common.SameHost(baseURL, resolved)
		if internal {
			result.InternalLinks++
			if !seen[resolved] && len(result.DiscoveredURLs) < maxDiscoveredURLs {
				seen[resolved] = true
				result.DiscoveredURLs = append(result.DiscoveredURLs, resolved)
			}
		} else {
			result.ExternalLinks++
		}

		utm := extractUTMParams(resolved)
		tracked := len(utm) > 0
		if tracked {
			result.UTM.TrackedLinks++
		} else if internal {
			result.UTM.MissingUTM++
		}

		// Examples cover UTM-tagged anchors and untagged internal ones
		if tracked || internal {
			example := LinkExample{
				URL:           resolved,
				Params:        utm,
				Text:          text,
				DeviceVariant: classifyDeviceVariant(attrs),
			}
			if headingIdx >= 0 {
				h := headings[headingIdx]
				example.Heading = &HeadingRef{
					Tag:  strings.ToLower(html[h[2]:h[3]]),
					Text: cleanText(html[h[4]:h[5]]),
				}
			}
			result.UTM.Examples = append(result.UTM.Examples, example)
		}
	}

	return result
}

// extractUTMParams returns the query parameters whose names start with
// "utm_" case-insensitively. Keys are lowercased.
func extractUTMParams(rawURL string) map[string]string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var params map[string]string
	for key, values := range parsed.Query() {
		if !strings.HasPrefix(strings.ToLower(key), "utm_") || len(values) == 0 {
			continue
		}
		if params == nil {
			params = map[string]string{}
		}
		params[strings.ToLower(key)] = values[0]
	}
	return params
}

// classifyDeviceVariant infers the device class from the anchor's CSS
// classes and data-* attribute values.
func classifyDeviceVariant(attrs map[string]string) models.DeviceVariant {
	var tokens []string
	if class, ok := attrs["class"]; ok {
		tokens = append(tokens, splitTokens(class)...)
	}
	for name, value := range attrs {
		if strings.HasPrefix(name, "data-") {
			tokens = append(tokens, splitTokens(value)...)
		}
	}

	for _, variant := range []models.DeviceVariant{models.DeviceDesktop, models.DeviceTablet, models.DeviceMobile} {
		for _, token := range tokens {
			if containsWord(deviceKeywords[variant], token) {
				return variant
			}
		}
	}
	return ""
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func parseAttrs(tag string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(tag, -1) {
		attrs[strings.ToLower(m[1])] = m[2]
	}
	return attrs
}
