package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/seoscan/internal/models"
)

func analyzePage(html, baseURL string) *models.IssueSummary {
	seo := AnalyzeSEO(html)
	seo.JSONLD = AnalyzeJSONLD(html)
	links := AnalyzeLinks(html, baseURL)
	tracking := AnalyzeTracking(html)
	return BuildIssueSummary(seo, links, tracking)
}

func TestBuildIssueSummary_SamplePage(t *testing.T) {
	summary := analyzePage(samplePageHTML, "https://example.com")

	assert.False(t, summary.Seo.MissingTitle)
	assert.False(t, summary.Seo.MissingDescription)
	assert.False(t, summary.Seo.MissingH1)
	assert.False(t, summary.Seo.MissingCanonical)
	assert.False(t, summary.Seo.JSONLDMissing)

	assert.Equal(t, 2, summary.Links.InternalLinks)
	assert.Equal(t, 1, summary.Links.ExternalLinks)
	assert.Equal(t, 1, summary.Links.UTMTracked)
	assert.Equal(t, 1, summary.Links.UTMMissing)
	assert.Equal(t, 1, summary.LinkIssues)

	assert.False(t, summary.Tracking.MixpanelMissing)
	assert.False(t, summary.Tracking.GAMissing)
	assert.Equal(t, 0, summary.TrackingIssues)
	assert.Greater(t, summary.SeoScore, 0)
}

func TestBuildIssueSummary_BarePage(t *testing.T) {
	summary := analyzePage(`<html><body><a href="/only">x</a></body></html>`, "https://example.com")

	assert.True(t, summary.Seo.MissingTitle)
	assert.True(t, summary.Seo.MissingDescription)
	assert.True(t, summary.Seo.MissingH1)
	assert.True(t, summary.Seo.MissingCanonical)
	assert.True(t, summary.Seo.JSONLDMissing)
	assert.Equal(t, 5, summary.SeoIssues)

	assert.True(t, summary.Tracking.MixpanelMissing)
	assert.True(t, summary.Tracking.GAMissing)
	assert.Equal(t, 2, summary.TrackingIssues)
	assert.Equal(t, 1, summary.LinkIssues)
}

func TestAggregateSummaries_TwoPages(t *testing.T) {
	pageOne := analyzePage(samplePageHTML, "https://example.com")
	pageTwo := analyzePage(`<html><body><a href="/only">x</a></body></html>`, "https://example.com")

	agg := AggregateSummaries([]*models.IssueSummary{pageOne, pageTwo})

	assert.Equal(t, 2, agg.PagesAnalysed)
	assert.Equal(t, 1, agg.Seo.MissingTitle)
	assert.Equal(t, 1, agg.Tracking.MixpanelMissing)
	assert.Greater(t, agg.Scorecard.SeoAverageScore, 0)
	assert.GreaterOrEqual(t, agg.Scorecard.UTMCoveragePercent, 0)
	assert.LessOrEqual(t, agg.Scorecard.UTMCoveragePercent, 100)

	assert.Equal(t, 3, agg.Links.InternalLinks)
	assert.Equal(t, 1, agg.Links.UTMTracked)
	assert.Equal(t, 2, agg.Links.UTMMissing)
}

func TestAggregateSummaries_Empty(t *testing.T) {
	agg := AggregateSummaries(nil)

	assert.Equal(t, 0, agg.PagesAnalysed)
	assert.Equal(t, models.Scorecard{}, agg.Scorecard)
}

func TestAggregateSummaries_UTMCoverageZeroOnlyWhenNoLinks(t *testing.T) {
	noLinks := &models.IssueSummary{SeoScore: 80}
	agg := AggregateSummaries([]*models.IssueSummary{noLinks})
	assert.Equal(t, 0, agg.Scorecard.UTMCoveragePercent)

	allTracked := &models.IssueSummary{
		Links:    models.LinkCounters{UTMTracked: 4},
		SeoScore: 80,
	}
	agg = AggregateSummaries([]*models.IssueSummary{allTracked})
	assert.Equal(t, 100, agg.Scorecard.UTMCoveragePercent)
}

func TestAggregateSummaries_ScorecardMath(t *testing.T) {
	summaries := []*models.IssueSummary{
		{
			Links:    models.LinkCounters{UTMTracked: 3, UTMMissing: 1},
			Tracking: models.TrackingFlags{MixpanelMissing: false, GAMissing: false},
			SeoScore: 90,
		},
		{
			Links:    models.LinkCounters{UTMTracked: 1, UTMMissing: 3},
			Tracking: models.TrackingFlags{MixpanelMissing: true, GAMissing: false},
			SeoScore: 70,
		},
	}

	agg := AggregateSummaries(summaries)

	assert.Equal(t, 80, agg.Scorecard.SeoAverageScore)
	// 4 tracked / 8 total
	assert.Equal(t, 50, agg.Scorecard.UTMCoveragePercent)
	// 1 of 2 pages has mixpanel, 2 of 2 have ga
	assert.Equal(t, 50, agg.Scorecard.MixpanelCoveragePercent)
	assert.Equal(t, 100, agg.Scorecard.GACoveragePercent)
	assert.Equal(t, 75, agg.Scorecard.TrackingCoverageAverage)
	// round((80 + 50 + 75) / 3) = 68
	assert.Equal(t, 68, agg.Scorecard.OverallHealthPercent)
}

func TestBuildIssueSummary_NilInputs(t *testing.T) {
	assert.NotPanics(t, func() {
		summary := BuildIssueSummary(nil, nil, nil)
		assert.True(t, summary.Tracking.MixpanelMissing)
	})
}
