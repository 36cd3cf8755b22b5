package models

import "encoding/json"

// SeoFlags are the per-page boolean SEO findings
type SeoFlags struct {
	MissingTitle       bool `json:"missingTitle"`
	MissingDescription bool `json:"missingDescription"`
	MissingH1          bool `json:"missingH1"`
	MissingCanonical   bool `json:"missingCanonical"`
	RobotsBlocked      bool `json:"robotsBlocked"`
	JSONLDMissing      bool `json:"jsonLdMissing"`
	JSONLDInvalid      bool `json:"jsonLdInvalid"`
	JSONLDIncomplete   bool `json:"jsonLdIncomplete"`
}

// LinkCounters are the per-page link counters; the same shape is reused for
// aggregated sums across pages.
type LinkCounters struct {
	InternalLinks int `json:"internalLinks"`
	ExternalLinks int `json:"externalLinks"`
	UTMMissing    int `json:"utmMissing"`
	UTMTracked    int `json:"utmTracked"`
}

// TrackingFlags are the per-page analytics-platform findings
type TrackingFlags struct {
	MixpanelMissing bool `json:"mixpanelMissing"`
	GAMissing       bool `json:"gaMissing"`
}

// IssueSummary is the composite per-page finding set persisted on the page
// row. A failed page carries only Error.
type IssueSummary struct {
	Seo            SeoFlags      `json:"seo"`
	Links          LinkCounters  `json:"links"`
	Tracking       TrackingFlags `json:"tracking"`
	SeoIssues      int           `json:"seoIssues"`
	LinkIssues     int           `json:"linkIssues"`
	TrackingIssues int           `json:"trackingIssues"`
	SeoScore       int           `json:"seoScore"`
	Error          string        `json:"error,omitempty"`
}

// AggregatedSeo counts, per flag, the pages on which the flag was raised
type AggregatedSeo struct {
	MissingTitle       int `json:"missingTitle"`
	MissingDescription int `json:"missingDescription"`
	MissingH1          int `json:"missingH1"`
	MissingCanonical   int `json:"missingCanonical"`
	RobotsBlocked      int `json:"robotsBlocked"`
	JSONLDMissing      int `json:"jsonLdMissing"`
	JSONLDInvalid      int `json:"jsonLdInvalid"`
	JSONLDIncomplete   int `json:"jsonLdIncomplete"`
}

// AggregatedTracking counts pages missing each analytics platform
type AggregatedTracking struct {
	MixpanelMissing int `json:"mixpanelMissing"`
	GAMissing       int `json:"gaMissing"`
}

// Scorecard summarizes site health as rounded percentages
type Scorecard struct {
	SeoAverageScore         int `json:"seoAverageScore"`
	UTMCoveragePercent      int `json:"utmCoveragePercent"`
	MixpanelCoveragePercent int `json:"mixpanelCoveragePercent"`
	GACoveragePercent       int `json:"gaCoveragePercent"`
	TrackingCoverageAverage int `json:"trackingCoverageAverage"`
	OverallHealthPercent    int `json:"overallHealthPercent"`
}

// AggregatedSummary is the whole-job rollup written when a job completes
type AggregatedSummary struct {
	PagesAnalysed  int                `json:"pagesAnalysed"`
	Seo            AggregatedSeo      `json:"seo"`
	Links          LinkCounters       `json:"links"`
	Tracking       AggregatedTracking `json:"tracking"`
	SeoIssues      int                `json:"seoIssues"`
	LinkIssues     int                `json:"linkIssues"`
	TrackingIssues int                `json:"trackingIssues"`
	Scorecard      Scorecard          `json:"scorecard"`
}

// ToJSON serializes the summary for the jobs issues_summary column
func (a *AggregatedSummary) ToJSON() (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AggregatedSummaryFromJSON deserializes a stored issues_summary column
func AggregatedSummaryFromJSON(data string) (*AggregatedSummary, error) {
	if data == "" {
		return nil, nil
	}
	var summary AggregatedSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
