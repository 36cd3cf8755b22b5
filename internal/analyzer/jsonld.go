package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// SchemaRule lists the fields JSON-LD scoring checks for one Schema.org type
type SchemaRule struct {
	Required    []string
	Recommended []string
}

// schemaRules maps the Schema.org types the auditor understands to their
// field checklists. Unknown types are scored on @context/@type alone.
var schemaRules = map[string]SchemaRule{
	"Organization":   {Required: []string{"name", "url"}, Recommended: []string{"logo", "sameAs", "contactPoint"}},
	"WebSite":        {Required: []string{"name", "url"}, Recommended: []string{"description", "potentialAction"}},
	"WebPage":        {Required: []string{"name"}, Recommended: []string{"description", "url"}},
	"Article":        {Required: []string{"headline", "author", "datePublished"}, Recommended: []string{"image", "dateModified", "publisher", "mainEntityOfPage"}},
	"BlogPosting":    {Required: []string{"headline", "author", "datePublished"}, Recommended: []string{"image", "dateModified", "publisher", "mainEntityOfPage"}},
	"NewsArticle":    {Required: []string{"headline", "author", "datePublished"}, Recommended: []string{"image", "dateModified", "publisher", "mainEntityOfPage"}},
	"BreadcrumbList": {Required: []string{"itemListElement"}},
	"Product":        {Required: []string{"name", "image"}, Recommended: []string{"description", "offers", "brand", "sku", "aggregateRating"}},
	"LocalBusiness":  {Required: []string{"name", "address"}, Recommended: []string{"telephone", "openingHoursSpecification", "geo", "priceRange"}},
	"Person":         {Required: []string{"name"}, Recommended: []string{"jobTitle", "url", "sameAs"}},
	"Event":          {Required: []string{"name", "startDate", "location"}, Recommended: []string{"endDate", "description", "image", "offers"}},
	"FAQPage":        {Required: []string{"mainEntity"}},
	"HowTo":          {Required: []string{"name", "step"}, Recommended: []string{"totalTime", "image"}},
	"VideoObject":    {Required: []string{"name", "thumbnailUrl", "uploadDate"}, Recommended: []string{"description", "duration", "contentUrl"}},
}

// Fields whose values are checked for URL / ISO date shape
var (
	urlFields  = map[string]bool{"url": true, "image": true, "logo": true, "thumbnailUrl": true, "contentUrl": true, "mainEntityOfPage": true}
	dateFields = map[string]bool{"datePublished": true, "dateModified": true, "startDate": true, "endDate": true, "uploadDate": true}
)

// JSONLDBlock is the scored result for one structured-data entity
type JSONLDBlock struct {
	Type     string   `json:"type,omitempty"`
	Score    int      `json:"score"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// JSONLDAnalysis is the result of AnalyzeJSONLD for one page
type JSONLDAnalysis struct {
	Present    bool          `json:"present"`
	ValidJSON  bool          `json:"validJson"`
	HasContext bool          `json:"hasContext"`
	HasType    bool          `json:"hasType"`
	IsValid    bool          `json:"isValid"`
	Score      int           `json:"score"`
	Types      []string      `json:"types,omitempty"`
	Blocks     []JSONLDBlock `json:"blocks,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
}

// AnalyzeJSONLD finds every application/ld+json script, expands @graph
// arrays into individual entities, and scores each against the field rules
// for its declared type. The page score is the mean over entities. A block
// that fails to parse becomes a page-level error; analysis continues.
func AnalyzeJSONLD(html string) *JSONLDAnalysis {
	result := &JSONLDAnalysis{}

	scripts := ldJSONRe.FindAllStringSubmatch(html, -1)
	if len(scripts) == 0 {
		return result
	}
	result.Present = true

	var entities []map[string]any
	parsedAny := false
	for i, m := range scripts {
		raw := strings.TrimSpace(m[1])
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("block %d: invalid JSON", i+1))
			continue
		}
		parsedAny = true
		entities = append(entities, flattenEntities(parsed)...)
	}
	result.ValidJSON = parsedAny && len(result.Errors) == 0

	if len(entities) == 0 {
		result.Score = 0
		return result
	}

	sum := 0
	for _, entity := range entities {
		block := scoreEntity(entity)
		if hasSchemaContext(entity) {
			result.HasContext = true
		}
		if block.Type != "" {
			result.HasType = true
			result.Types = append(result.Types, block.Type)
		}
		result.Blocks = append(result.Blocks, block)
		sum += block.Score
	}
	result.Score = int(math.Round(float64(sum) / float64(len(result.Blocks))))

	blockErrors := false
	for _, b := range result.Blocks {
		if len(b.Errors) > 0 {
			blockErrors = true
			break
		}
	}
	result.IsValid = result.ValidJSON && result.HasContext && result.HasType && !blockErrors

	return result
}

// flattenEntities expands a parsed JSON-LD document into entity objects,
// pulling @graph members up and propagating the root @context down.
func flattenEntities(parsed any) []map[string]any {
	var out []map[string]any
	switch v := parsed.(type) {
	case []any:
		for _, item := range v {
			out = append(out, flattenEntities(item)...)
		}
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			for _, item := range graph {
				if entity, ok := item.(map[string]any); ok {
					if _, has := entity["@context"]; !has {
						if ctx, ok := v["@context"]; ok {
							entity["@context"] = ctx
						}
					}
					out = append(out, entity)
				}
			}
			return out
		}
		out = append(out, v)
	}
	return out
}

func scoreEntity(entity map[string]any) JSONLDBlock {
	block := JSONLDBlock{Score: 100}

	entityType := entityTypeName(entity)
	block.Type = entityType
	if entityType == "" {
		block.Errors = append(block.Errors, "missing @type")
		block.Score -= 30
	}
	if !hasSchemaContext(entity) {
		block.Errors = append(block.Errors, "missing or non-schema.org @context")
		block.Score -= 20
	}

	if rule, ok := schemaRules[entityType]; ok {
		for _, field := range rule.Required {
			if !fieldPresent(entity, field) {
				block.Errors = append(block.Errors, fmt.Sprintf("missing required field %q", field))
				block.Score -= 15
			}
		}
		for _, field := range rule.Recommended {
			if !fieldPresent(entity, field) {
				block.Warnings = append(block.Warnings, fmt.Sprintf("missing recommended field %q", field))
				block.Score -= 5
			}
		}
	}

	for field, value := range entity {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if urlFields[field] && !looksLikeURL(s) {
			block.Warnings = append(block.Warnings, fmt.Sprintf("field %q is not a valid URL", field))
			block.Score -= 3
		}
		if dateFields[field] && !looksLikeISODate(s) {
			block.Warnings = append(block.Warnings, fmt.Sprintf("field %q is not an ISO 8601 date", field))
			block.Score -= 5
		}
	}

	if block.Score < 0 {
		block.Score = 0
	}
	return block
}

func entityTypeName(entity map[string]any) string {
	switch t := entity["@type"].(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func hasSchemaContext(entity map[string]any) bool {
	switch c := entity["@context"].(type) {
	case string:
		return strings.Contains(strings.ToLower(c), "schema.org")
	case map[string]any:
		for _, v := range c {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), "schema.org") {
				return true
			}
		}
	}
	return false
}

func fieldPresent(entity map[string]any, field string) bool {
	value, ok := entity[field]
	if !ok || value == nil {
		return false
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	}
	return true
}

func looksLikeURL(s string) bool {
	parsed, err := url.Parse(s)
	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func looksLikeISODate(s string) bool {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05", "2006-01-02T15:04:05Z0700"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
