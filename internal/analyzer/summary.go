package analyzer

import (
	"math"

	"github.com/ternarybob/seoscan/internal/models"
)

// jsonLdIncompleteThreshold marks structurally valid JSON-LD that still
// misses enough recommended fields to need attention.
const jsonLdIncompleteThreshold = 70

// BuildIssueSummary folds the per-page analyzer outputs into the finding
// set persisted on the page row.
func BuildIssueSummary(seo *SeoAnalysis, links *LinkAnalysis, tracking []models.TrackingEvent) *models.IssueSummary {
	summary := &models.IssueSummary{}

	if seo != nil {
		summary.Seo.MissingTitle = seo.Title == ""
		summary.Seo.MissingDescription = seo.MetaDescription == ""
		summary.Seo.MissingH1 = seo.H1 == nil || cleanText(*seo.H1) == ""
		summary.Seo.MissingCanonical = seo.Canonical == ""
		summary.Seo.RobotsBlocked = seo.RobotsNoindex
		if seo.JSONLD != nil {
			summary.Seo.JSONLDMissing = !seo.JSONLD.Present
			summary.Seo.JSONLDInvalid = seo.JSONLD.Present && !seo.JSONLD.IsValid
			summary.Seo.JSONLDIncomplete = seo.JSONLD.IsValid && seo.JSONLD.Score < jsonLdIncompleteThreshold
		} else {
			summary.Seo.JSONLDMissing = len(seo.SchemaOrg) == 0
		}
		summary.SeoScore = seo.Score
	}

	if links != nil {
		summary.Links.InternalLinks = links.InternalLinks
		summary.Links.ExternalLinks = links.ExternalLinks
		summary.Links.UTMMissing = links.UTM.MissingUTM
		summary.Links.UTMTracked = links.UTM.TrackedLinks
	}

	summary.Tracking.MixpanelMissing = true
	summary.Tracking.GAMissing = true
	for _, event := range tracking {
		switch event.Platform {
		case PlatformMixpanel:
			summary.Tracking.MixpanelMissing = false
		case PlatformGA:
			summary.Tracking.GAMissing = false
		}
	}

	summary.SeoIssues = countSeoFlags(summary.Seo)
	summary.LinkIssues = summary.Links.UTMMissing
	summary.TrackingIssues = 0
	if summary.Tracking.MixpanelMissing {
		summary.TrackingIssues++
	}
	if summary.Tracking.GAMissing {
		summary.TrackingIssues++
	}

	return summary
}

func countSeoFlags(flags models.SeoFlags) int {
	count := 0
	for _, b := range []bool{
		flags.MissingTitle, flags.MissingDescription, flags.MissingH1,
		flags.MissingCanonical, flags.RobotsBlocked,
		flags.JSONLDMissing, flags.JSONLDInvalid, flags.JSONLDIncomplete,
	} {
		if b {
			count++
		}
	}
	return count
}

// AggregateSummaries rolls per-page summaries into the job-level view:
// counters are summed, boolean flags become counts of pages where the flag
// was raised, and the scorecard percentages are computed over the set.
// Empty input yields a zero summary.
func AggregateSummaries(summaries []*models.IssueSummary) *models.AggregatedSummary {
	agg := &models.AggregatedSummary{}
	if len(summaries) == 0 {
		return agg
	}

	seoScoreSum := 0
	for _, s := range summaries {
		if s == nil {
			continue
		}
		agg.PagesAnalysed++

		countFlag(&agg.Seo.MissingTitle, s.Seo.MissingTitle)
		countFlag(&agg.Seo.MissingDescription, s.Seo.MissingDescription)
		countFlag(&agg.Seo.MissingH1, s.Seo.MissingH1)
		countFlag(&agg.Seo.MissingCanonical, s.Seo.MissingCanonical)
		countFlag(&agg.Seo.RobotsBlocked, s.Seo.RobotsBlocked)
		countFlag(&agg.Seo.JSONLDMissing, s.Seo.JSONLDMissing)
		countFlag(&agg.Seo.JSONLDInvalid, s.Seo.JSONLDInvalid)
		countFlag(&agg.Seo.JSONLDIncomplete, s.Seo.JSONLDIncomplete)

		agg.Links.InternalLinks += s.Links.InternalLinks
		agg.Links.ExternalLinks += s.Links.ExternalLinks
		agg.Links.UTMMissing += s.Links.UTMMissing
		agg.Links.UTMTracked += s.Links.UTMTracked

		countFlag(&agg.Tracking.MixpanelMissing, s.Tracking.MixpanelMissing)
		countFlag(&agg.Tracking.GAMissing, s.Tracking.GAMissing)

		agg.SeoIssues += s.SeoIssues
		agg.LinkIssues += s.LinkIssues
		agg.TrackingIssues += s.TrackingIssues
		seoScoreSum += s.SeoScore
	}

	if agg.PagesAnalysed == 0 {
		return agg
	}

	n := float64(agg.PagesAnalysed)
	agg.Scorecard.SeoAverageScore = roundDiv(float64(seoScoreSum), n)

	utmDenom := agg.Links.UTMTracked + agg.Links.UTMMissing
	if utmDenom > 0 {
		agg.Scorecard.UTMCoveragePercent = roundDiv(float64(agg.Links.UTMTracked)*100, float64(utmDenom))
	}

	agg.Scorecard.MixpanelCoveragePercent = roundDiv(float64(agg.PagesAnalysed-agg.Tracking.MixpanelMissing)*100, n)
	agg.Scorecard.GACoveragePercent = roundDiv(float64(agg.PagesAnalysed-agg.Tracking.GAMissing)*100, n)
	agg.Scorecard.TrackingCoverageAverage = roundDiv(float64(agg.Scorecard.MixpanelCoveragePercent+agg.Scorecard.GACoveragePercent), 2)
	agg.Scorecard.OverallHealthPercent = roundDiv(float64(agg.Scorecard.SeoAverageScore+agg.Scorecard.UTMCoveragePercent+agg.Scorecard.TrackingCoverageAverage), 3)

	return agg
}

func countFlag(counter *int, flag bool) {
	if flag {
		*counter++
	}
}

func roundDiv(numerator, denominator float64) int {
	if denominator == 0 {
		return 0
	}
	return int(math.Round(numerator / denominator))
}
