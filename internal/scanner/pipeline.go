package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/analyzer"
	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// singleScanSteps is the number of logical pipeline steps reported as
// progress for single-page jobs.
const singleScanSteps = 6

// PageError marks a failure confined to one page (fetch, render, analyze).
// The crawler downgrades these to a failed page row and keeps going;
// anything else is treated as infrastructure failure and aborts the job.
type PageError struct {
	URL string
	Err error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %s failed: %v", e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// StepFunc is invoked once per logical pipeline step with a progress
// message. Returning an error aborts the scan (used for cancellation).
type StepFunc func(message string) error

// SingleScanResult is what one pipeline run reports back to its caller
type SingleScanResult struct {
	PageID         string               `json:"pageId"`
	URL            string               `json:"url"`
	PagesTotal     int                  `json:"pagesTotal"`
	PagesFinished  int                  `json:"pagesFinished"`
	DiscoveredURLs []string             `json:"discoveredUrls,omitempty"`
	HTTPStatus     int                  `json:"httpStatus"`
	LoadTimeMs     int64                `json:"loadTimeMs"`
	IssueSummary   *models.IssueSummary `json:"issueSummary"`
}

// Pipeline fetches, analyzes and persists one page per call
type Pipeline struct {
	storage interfaces.StorageManager
	fetcher *Fetcher
	browser interfaces.BrowserWorker
	config  common.ScannerConfig
	logger  arbor.ILogger
}

// NewPipeline wires the page pipeline. browser may be nil, forcing static
// fetches regardless of configuration.
func NewPipeline(storage interfaces.StorageManager, fetcher *Fetcher, browser interfaces.BrowserWorker, config common.ScannerConfig, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		storage: storage,
		fetcher: fetcher,
		browser: browser,
		config:  config,
		logger:  logger,
	}
}

// ScanPage runs the full pipeline for one URL. The page row is created in
// its own committed transaction before fetch and analysis; final state plus
// child metric rows go in a second transaction, so a crash mid-analysis
// leaves a visible failed page rather than nothing.
func (p *Pipeline) ScanPage(ctx context.Context, job *models.Job, pageURL string, step StepFunc) (*SingleScanResult, error) {
	page := &models.Page{
		ID:        common.NewPageID(),
		JobID:     job.ID,
		URL:       pageURL,
		Status:    models.PageStatusProcessing,
		CreatedAt: time.Now(),
	}
	if err := p.storage.PageStorage().CreatePage(ctx, page); err != nil {
		return nil, fmt.Errorf("failed to create page row: %w", err)
	}
	if err := p.advance(step, "Page record created"); err != nil {
		return nil, p.failPage(ctx, page, err)
	}

	fetched, anchors, calls, primaryVariant, err := p.fetch(ctx, job, pageURL)
	if err != nil {
		return nil, p.failPage(ctx, page, &PageError{URL: pageURL, Err: err})
	}
	if err := p.advance(step, "Page fetched"); err != nil {
		return nil, p.failPage(ctx, page, err)
	}

	seo := analyzer.AnalyzeSEO(fetched.HTML)
	seo.JSONLD = analyzer.AnalyzeJSONLD(fetched.HTML)
	seo.Structure = analyzer.AnalyzeHTMLStructure(fetched.HTML)
	if err := p.advance(step, "SEO analysis complete"); err != nil {
		return nil, p.failPage(ctx, page, err)
	}

	var links *analyzer.LinkAnalysis
	if anchors != nil {
		links = synthesizeLinkAnalysis(anchors, primaryVariant, pageURL)
	} else {
		links = analyzer.AnalyzeLinks(fetched.HTML, pageURL)
	}
	if err := p.advance(step, "Link analysis complete"); err != nil {
		return nil, p.failPage(ctx, page, err)
	}

	var tracking []models.TrackingEvent
	if calls != nil {
		tracking = trackingEventsFromCalls(calls)
	} else {
		tracking = analyzer.AnalyzeTracking(fetched.HTML)
	}
	if err := p.advance(step, "Tracking analysis complete"); err != nil {
		return nil, p.failPage(ctx, page, err)
	}

	summary := analyzer.BuildIssueSummary(seo, links, tracking)

	page.Status = models.PageStatusCompleted
	page.HTTPStatus = fetched.HTTPStatus
	page.LoadTimeMs = fetched.LoadTimeMs
	page.IssueCounts = summary
	page.DeviceVariant = primaryVariant

	seoMetrics := buildSeoMetrics(seo)
	linkMetrics := buildLinkMetrics(links)
	if err := p.storage.PageStorage().SaveMetrics(ctx, page, seoMetrics, linkMetrics, tracking); err != nil {
		return nil, p.failPage(ctx, page, fmt.Errorf("failed to persist metrics: %w", err))
	}
	if err := p.advance(step, "Metrics persisted"); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Str("page_id", page.ID).
		Str("url", pageURL).
		Int("seo_score", summary.SeoScore).
		Int("discovered", len(links.DiscoveredURLs)).
		Msg("Page scanned")

	return &SingleScanResult{
		PageID:         page.ID,
		URL:            pageURL,
		PagesTotal:     1,
		PagesFinished:  1,
		DiscoveredURLs: links.DiscoveredURLs,
		HTTPStatus:     fetched.HTTPStatus,
		LoadTimeMs:     fetched.LoadTimeMs,
		IssueSummary:   summary,
	}, nil
}

func (p *Pipeline) advance(step StepFunc, message string) error {
	if step == nil {
		return nil
	}
	return step(message)
}

// failPage persists the page's failed state before returning the error.
// The update runs detached from ctx cancellation: on cooperative cancel the
// incoming ctx is already done, and the row must still leave `processing`.
func (p *Pipeline) failPage(ctx context.Context, page *models.Page, cause error) error {
	page.Status = models.PageStatusFailed
	page.IssueCounts = &models.IssueSummary{Error: cause.Error()}
	if err := p.storage.PageStorage().UpdatePage(context.WithoutCancel(ctx), page); err != nil {
		p.logger.Error().Err(err).
			Str("page_id", page.ID).
			Msg("Failed to record page failure")
	}
	return cause
}

// fetch retrieves the page HTML. In browser mode every configured device
// profile is rendered; the first profile is primary and supplies the HTML
// and status, while anchors and tracking calls aggregate across profiles.
func (p *Pipeline) fetch(ctx context.Context, job *models.Job, pageURL string) (*FetchResult, map[models.DeviceVariant][]models.AnchorInfo, []models.TrackingCall, models.DeviceVariant, error) {
	userAgent, timeoutMs := "", 0
	profiles := p.config.DeviceProfiles
	if job.Options != nil {
		userAgent = job.Options.UserAgent
		timeoutMs = job.Options.RequestTimeoutMs
		if len(job.Options.DeviceProfiles) > 0 {
			profiles = job.Options.DeviceProfiles
		}
	}

	if p.browser == nil || !p.config.UseBrowser {
		result, err := p.fetcher.Fetch(ctx, pageURL, p.fetcher.Params(userAgent, timeoutMs))
		return result, nil, nil, "", err
	}

	if len(profiles) == 0 {
		profiles = []string{string(models.DeviceDesktop)}
	}

	var primary *FetchResult
	primaryVariant := models.DeviceVariant(profiles[0])
	anchorsByProfile := make(map[models.DeviceVariant][]models.AnchorInfo, len(profiles))
	var calls []models.TrackingCall

	for i, name := range profiles {
		variant := models.DeviceVariant(name)
		rendered, err := p.browser.RenderPage(ctx, pageURL, variant)
		if err != nil {
			if i == 0 {
				return nil, nil, nil, "", err
			}
			p.logger.Warn().Err(err).
				Str("url", pageURL).
				Str("profile", name).
				Msg("Secondary profile render failed, continuing with the rest")
			continue
		}
		anchorsByProfile[variant] = rendered.Anchors
		calls = append(calls, rendered.TrackingCalls...)
		if i == 0 {
			primary = &FetchResult{
				HTML:       rendered.HTML,
				HTTPStatus: rendered.HTTPStatus,
				LoadTimeMs: rendered.LoadTimeMs,
				FinalURL:   rendered.URL,
			}
		}
	}

	return primary, anchorsByProfile, calls, primaryVariant, nil
}

// synthesizeLinkAnalysis builds a LinkAnalysis from browser-observed
// anchors. Internal/external counts and discovered URLs come from the
// primary profile only; UTM tagging aggregates across all profiles.
func synthesizeLinkAnalysis(anchorsByProfile map[models.DeviceVariant][]models.AnchorInfo, primary models.DeviceVariant, baseURL string) *analyzer.LinkAnalysis {
	result := &analyzer.LinkAnalysis{}
	seen := make(map[string]struct{})

	for _, anchor := range anchorsByProfile[primary] {
		internal := common.SameHost(baseURL, anchor.Href)
		if internal {
			result.InternalLinks++
			if normalized, err := common.NormalizeURL(anchor.Href); err == nil {
				if _, ok := seen[normalized]; !ok && len(result.DiscoveredURLs) < 200 {
					seen[normalized] = struct{}{}
					result.DiscoveredURLs = append(result.DiscoveredURLs, normalized)
				}
			}
		} else {
			result.ExternalLinks++
		}
	}

	// Primary profile first, the rest in stable order
	variants := make([]models.DeviceVariant, 0, len(anchorsByProfile))
	variants = append(variants, primary)
	for variant := range anchorsByProfile {
		if variant != primary {
			variants = append(variants, variant)
		}
	}
	sort.Slice(variants[1:], func(i, j int) bool { return variants[i+1] < variants[j+1] })

	for _, variant := range variants {
		for _, anchor := range anchorsByProfile[variant] {
			internal := common.SameHost(baseURL, anchor.Href)
			tracked := len(anchor.UTMParams) > 0
			if tracked {
				result.UTM.TrackedLinks++
			} else if internal {
				result.UTM.MissingUTM++
			}
			if !tracked && !internal {
				continue
			}
			example := analyzer.LinkExample{
				URL:           anchor.Href,
				Params:        anchor.UTMParams,
				Text:          anchor.Text,
				DeviceVariant: anchor.DeviceVariant,
			}
			if example.DeviceVariant == "" {
				example.DeviceVariant = variant
			}
			if anchor.NearestHeading != nil {
				example.Heading = &analyzer.HeadingRef{
					Tag:  anchor.NearestHeading.Tag,
					Text: anchor.NearestHeading.Text,
				}
			}
			result.UTM.Examples = append(result.UTM.Examples, example)
		}
	}

	return result
}

// trackingEventsFromCalls converts browser-intercepted calls into tracking
// event rows. Calls observed live are `fired`, unlike the `detected` status
// of static pattern matches.
func trackingEventsFromCalls(calls []models.TrackingCall) []models.TrackingEvent {
	events := make([]models.TrackingEvent, 0, len(calls))
	for _, call := range calls {
		element := call.Element
		if element == "" {
			element = "script"
		}
		// Annotate a copy; the call's own payload map stays untouched
		payload := make(map[string]any, len(call.Payload)+1)
		for k, v := range call.Payload {
			payload[k] = v
		}
		payload["method"] = call.Method
		events = append(events, models.TrackingEvent{
			Element:   element,
			Trigger:   call.Trigger,
			EventName: call.EventName,
			Platform:  call.Platform,
			Payload:   payload,
			Status:    models.TrackingFired,
		})
	}
	return events
}

func buildSeoMetrics(seo *analyzer.SeoAnalysis) *models.SeoMetrics {
	metrics := &models.SeoMetrics{
		Title:           seo.Title,
		MetaDescription: seo.MetaDescription,
		Canonical:       seo.Canonical,
		RobotsBlocked:   seo.RobotsNoindex,
		SchemaOrg:       seo.SchemaOrg,
		Score:           seo.Score,
	}
	if seo.H1 != nil {
		metrics.H1 = *seo.H1
	}
	if seo.JSONLD != nil {
		metrics.JSONLDScore = seo.JSONLD.Score
		metrics.JSONLDTypes = seo.JSONLD.Types
		metrics.JSONLDIssues = marshalRaw(seo.JSONLD.Blocks)
	}
	if seo.Structure != nil {
		metrics.HTMLStructureScore = seo.Structure.Score
		metrics.HTMLStructureIssues = marshalRaw(seo.Structure)
	}
	return metrics
}

func buildLinkMetrics(links *analyzer.LinkAnalysis) *models.LinkMetrics {
	return &models.LinkMetrics{
		InternalLinks: links.InternalLinks,
		ExternalLinks: links.ExternalLinks,
		UTMParams:     marshalRaw(links.UTM),
	}
}

func marshalRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// IsPageError reports whether err is confined to a single page
func IsPageError(err error) bool {
	var pageErr *PageError
	return errors.As(err, &pageErr)
}
