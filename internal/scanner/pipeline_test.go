package scanner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
	"github.com/ternarybob/seoscan/internal/storage/sqlite"
)

const samplePageHTML = `<html><head><title>Sample Page</title>` +
	`<meta name="description" content="A demo description"/>` +
	`<link rel="canonical" href="https://example.com/page"/>` +
	`<script type="application/ld+json">{"@context":"https://schema.org","@type":"WebSite","name":"Demo","url":"https://example.com"}</script>` +
	`<script>mixpanel.track("Clicked");gtag('config','UA-123')</script>` +
	`</head><body><h1>Heading</h1>` +
	`<a class="cta desktop-link" data-viewport="desktop" href="/internal?utm_source=newsletter&utm_campaign=test">Internal tracked</a>` +
	`<a class="cta mobile-only" data-viewport="mobile" href="/internal-two">Internal missing</a>` +
	`<a href="https://external.com/page">External</a></body></html>`

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := sqlite.NewManager(common.GetLogger(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func staticScannerConfig() common.ScannerConfig {
	return common.ScannerConfig{
		MaxPages:         100,
		DefaultSiteDepth: 2,
		UserAgent:        "BunSEOChecker/1.0",
		RequestTimeoutMs: 5000,
		UseBrowser:       false,
	}
}

func newStaticPipeline(t *testing.T, manager interfaces.StorageManager) *Pipeline {
	t.Helper()
	config := staticScannerConfig()
	fetcher := NewFetcher(config, common.GetLogger())
	return NewPipeline(manager, fetcher, nil, config, common.GetLogger())
}

func createJob(t *testing.T, manager interfaces.StorageManager, mode models.JobMode, targetURL string) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:        common.NewJobID(),
		TargetURL: targetURL,
		Mode:      mode,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, manager.JobStorage().CreateJob(context.Background(), job))
	return job
}

func TestPipeline_ScanPageHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BunSEOChecker/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(samplePageHTML))
	}))
	defer server.Close()

	manager := newTestStorage(t)
	job := createJob(t, manager, models.JobModeSingle, server.URL)
	pipeline := newStaticPipeline(t, manager)

	result, err := pipeline.ScanPage(context.Background(), job, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, result.HTTPStatus)
	assert.Equal(t, 1, result.PagesFinished)
	require.NotNil(t, result.IssueSummary)
	assert.False(t, result.IssueSummary.Seo.MissingTitle)
	assert.False(t, result.IssueSummary.Tracking.MixpanelMissing)
	assert.Equal(t, 2, result.IssueSummary.Links.InternalLinks)
	assert.Len(t, result.DiscoveredURLs, 2)

	page, err := manager.PageStorage().GetPageWithMetrics(context.Background(), result.PageID)
	require.NoError(t, err)
	assert.Equal(t, models.PageStatusCompleted, page.Status)
	require.NotNil(t, page.Seo)
	assert.Equal(t, "Sample Page", page.Seo.Title)
	assert.Equal(t, "Heading", page.Seo.H1)
	require.NotNil(t, page.Links)
	assert.Equal(t, 2, page.Links.InternalLinks)
	assert.Equal(t, 1, page.Links.ExternalLinks)
	assert.NotEmpty(t, page.Tracking)
}

func TestPipeline_ScanPageStepsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePageHTML))
	}))
	defer server.Close()

	manager := newTestStorage(t)
	job := createJob(t, manager, models.JobModeSingle, server.URL)
	pipeline := newStaticPipeline(t, manager)

	var messages []string
	step := func(message string) error {
		messages = append(messages, message)
		return nil
	}
	_, err := pipeline.ScanPage(context.Background(), job, server.URL, step)
	require.NoError(t, err)
	assert.Len(t, messages, singleScanSteps)
	assert.Equal(t, "Page record created", messages[0])
	assert.Equal(t, "Metrics persisted", messages[len(messages)-1])
}

func TestPipeline_FetchFailureLeavesFailedPage(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close() // connection refused

	manager := newTestStorage(t)
	job := createJob(t, manager, models.JobModeSingle, server.URL)
	pipeline := newStaticPipeline(t, manager)

	_, err := pipeline.ScanPage(context.Background(), job, server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsPageError(err))

	pages, total, listErr := manager.PageStorage().ListPages(context.Background(), job.ID, &interfaces.ListPagesOptions{})
	require.NoError(t, listErr)
	require.Equal(t, 1, total)
	assert.Equal(t, models.PageStatusFailed, pages[0].Status)
	require.NotNil(t, pages[0].IssueCounts)
	assert.NotEmpty(t, pages[0].IssueCounts.Error)
}

func TestPipeline_StepCancellationAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePageHTML))
	}))
	defer server.Close()

	manager := newTestStorage(t)
	job := createJob(t, manager, models.JobModeSingle, server.URL)
	pipeline := newStaticPipeline(t, manager)

	calls := 0
	step := func(string) error {
		calls++
		if calls == 2 {
			return ErrJobCancelled
		}
		return nil
	}
	_, err := pipeline.ScanPage(context.Background(), job, server.URL, step)
	assert.ErrorIs(t, err, ErrJobCancelled)

	pages, _, listErr := manager.PageStorage().ListPages(context.Background(), job.ID, &interfaces.ListPagesOptions{})
	require.NoError(t, listErr)
	require.Len(t, pages, 1)
	assert.Equal(t, models.PageStatusFailed, pages[0].Status)
}

func TestPipeline_FailedPageRecordedAfterContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePageHTML))
	}))
	defer server.Close()

	manager := newTestStorage(t)
	job := createJob(t, manager, models.JobModeSingle, server.URL)
	pipeline := newStaticPipeline(t, manager)

	// Cancel the scan context mid-pipeline, the way a cooperative job
	// cancellation does, and make sure the row still leaves `processing`
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	step := func(string) error {
		calls++
		if calls == 2 {
			cancel()
			return ErrJobCancelled
		}
		return nil
	}
	_, err := pipeline.ScanPage(ctx, job, server.URL, step)
	assert.ErrorIs(t, err, ErrJobCancelled)

	pages, _, listErr := manager.PageStorage().ListPages(context.Background(), job.ID, &interfaces.ListPagesOptions{})
	require.NoError(t, listErr)
	require.Len(t, pages, 1)
	assert.Equal(t, models.PageStatusFailed, pages[0].Status)
	require.NotNil(t, pages[0].IssueCounts)
	assert.NotEmpty(t, pages[0].IssueCounts.Error)
}

func TestSynthesizeLinkAnalysis(t *testing.T) {
	anchors := map[models.DeviceVariant][]models.AnchorInfo{
		models.DeviceDesktop: {
			{Href: "https://example.com/a?utm_source=x", UTMParams: map[string]string{"utm_source": "x"},
				Text: "Tracked", DeviceVariant: models.DeviceDesktop,
				NearestHeading: &models.AnchorHeading{Tag: "h1", Text: "Top"}},
			{Href: "https://example.com/b", Text: "Untagged"},
			{Href: "https://other.com/c", Text: "External"},
		},
		models.DeviceMobile: {
			{Href: "https://example.com/b", Text: "Untagged mobile"},
		},
	}

	links := synthesizeLinkAnalysis(anchors, models.DeviceDesktop, "https://example.com")

	// Counts from the primary profile only
	assert.Equal(t, 2, links.InternalLinks)
	assert.Equal(t, 1, links.ExternalLinks)
	assert.Equal(t, []string{"https://example.com/a?utm_source=x", "https://example.com/b"}, links.DiscoveredURLs)

	// UTM aggregation spans profiles
	assert.Equal(t, 1, links.UTM.TrackedLinks)
	assert.Equal(t, 2, links.UTM.MissingUTM)
	require.Len(t, links.UTM.Examples, 3)
	assert.Equal(t, "h1", links.UTM.Examples[0].Heading.Tag)
}

func TestTrackingEventsFromCalls(t *testing.T) {
	calls := []models.TrackingCall{
		{Platform: "mixpanel", Method: "mixpanel.track", EventName: "Clicked CTA", Trigger: "pageload"},
		{Platform: "ga", Method: "gtag", EventName: "sign_up", Trigger: "click",
			Element: "body > a.cta:nth-of-type(1)", Payload: map[string]any{"method_type": "email"}},
	}
	events := trackingEventsFromCalls(calls)
	require.Len(t, events, 2)

	assert.Equal(t, "script", events[0].Element)
	assert.Equal(t, models.TrackingFired, events[0].Status)
	assert.Equal(t, "mixpanel.track", events[0].Payload["method"])

	assert.Equal(t, "body > a.cta:nth-of-type(1)", events[1].Element)
	assert.Equal(t, "click", events[1].Trigger)
	assert.Equal(t, "email", events[1].Payload["method_type"])

	// The source call payloads are never mutated
	assert.NotContains(t, calls[1].Payload, "method")
	assert.Equal(t, map[string]any{"method_type": "email"}, calls[1].Payload)
}
