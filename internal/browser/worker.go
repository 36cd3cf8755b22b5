// Package browser drives a shared headless Chrome process for rendered-page
// scans. Each RenderPage call runs in its own tab so callers from different
// jobs can render concurrently.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

// sdkWarmupDelay gives late-loading analytics SDKs time to initialize and
// flush queued calls after the page settles.
const sdkWarmupDelay = 4 * time.Second

// Worker owns the shared Chrome process. Implements interfaces.BrowserWorker.
type Worker struct {
	config common.BrowserConfig
	logger arbor.ILogger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewWorker launches the browser process and verifies it responds
func NewWorker(config common.BrowserConfig, logger arbor.ILogger) (*Worker, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	logger.Info().
		Bool("headless", config.Headless).
		Int("timeout_ms", config.TimeoutMs).
		Msg("Browser worker started")

	return &Worker{
		config:        config,
		logger:        logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

var _ interfaces.BrowserWorker = (*Worker)(nil)

// RenderPage loads the URL in a fresh tab under the given device profile.
// The tracking hooks are installed before navigation, the page is given a
// network-idle wait plus an SDK warm-up, then anchors are enumerated and up
// to 20 visible ones are click-audited.
func (w *Worker) RenderPage(ctx context.Context, url string, variant models.DeviceVariant) (*models.RenderResult, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, fmt.Errorf("browser worker is closed")
	}
	w.mu.Unlock()

	profile, err := ProfileFor(variant)
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(w.browserCtx)
	defer tabCancel()

	timeout := time.Duration(w.config.TimeoutMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(time.Now().Add(timeout)) {
		runCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}

	watcher := newNetworkWatcher()
	chromedp.ListenTarget(runCtx, watcher.handle)

	started := time.Now()
	var html, anchorsJSON, logJSON string
	var audited int

	err = chromedp.Run(runCtx,
		network.Enable(),
		emulation.SetDeviceMetricsOverride(profile.Width, profile.Height, profile.ScaleFactor, profile.Mobile),
		emulation.SetUserAgentOverride(profile.UserAgent),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(trackingHookScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
		w.waitNetworkIdle(watcher),
		chromedp.Sleep(sdkWarmupDelay),
		chromedp.OuterHTML("html", &html),
		chromedp.Evaluate(anchorEnumerationScript, &anchorsJSON),
		chromedp.Evaluate(clickAuditScript, &audited, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.Evaluate(readTrackingLogScript, &logJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s as %s: %w", url, variant, err)
	}

	loadTime := time.Since(started).Milliseconds()

	anchors, err := parseAnchors(anchorsJSON, variant)
	if err != nil {
		w.logger.Warn().Err(err).Str("url", url).Msg("Failed to parse anchor inventory")
	}
	calls, err := parseTrackingLog(logJSON)
	if err != nil {
		w.logger.Warn().Err(err).Str("url", url).Msg("Failed to parse tracking log")
	}

	w.logger.Debug().
		Str("url", url).
		Str("profile", string(variant)).
		Int("anchors", len(anchors)).
		Int("audited", audited).
		Int("tracking_calls", len(calls)).
		Int64("load_time_ms", loadTime).
		Msg("Page rendered")

	return &models.RenderResult{
		URL:           url,
		Profile:       variant,
		HTML:          html,
		HTTPStatus:    watcher.documentStatus(),
		LoadTimeMs:    loadTime,
		Anchors:       anchors,
		TrackingCalls: calls,
	}, nil
}

// Close shuts down the shared browser process
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.browserCancel()
	w.allocCancel()
	w.logger.Info().Msg("Browser worker shut down")
	return nil
}

// waitNetworkIdle blocks until no request has been in flight for the
// configured quiet period. Gives up after half the page budget and lets
// extraction proceed with whatever loaded.
func (w *Worker) waitNetworkIdle(watcher *networkWatcher) chromedp.Action {
	quiet := time.Duration(w.config.NetworkIdleMs) * time.Millisecond
	if quiet <= 0 {
		quiet = 500 * time.Millisecond
	}
	maxWait := time.Duration(w.config.TimeoutMs) * time.Millisecond / 2

	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.After(maxWait)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline:
				w.logger.Debug().Msg("Network idle wait capped, proceeding")
				return nil
			case <-ticker.C:
				if watcher.idleFor(quiet) {
					return nil
				}
			}
		}
	})
}

// networkWatcher tracks in-flight requests and the main document response
type networkWatcher struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	status       int
}

func newNetworkWatcher() *networkWatcher {
	return &networkWatcher{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (n *networkWatcher) handle(ev interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		n.inflight[e.RequestID] = struct{}{}
		n.lastActivity = time.Now()
	case *network.EventLoadingFinished:
		delete(n.inflight, e.RequestID)
		n.lastActivity = time.Now()
	case *network.EventLoadingFailed:
		delete(n.inflight, e.RequestID)
		n.lastActivity = time.Now()
	case *network.EventResponseReceived:
		if e.Type == network.ResourceTypeDocument && n.status == 0 {
			n.status = int(e.Response.Status)
		}
	}
}

func (n *networkWatcher) idleFor(quiet time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inflight) == 0 && time.Since(n.lastActivity) >= quiet
}

func (n *networkWatcher) documentStatus() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status == 0 {
		return 200
	}
	return n.status
}

// rawAnchor mirrors the JSON emitted by anchorEnumerationScript
type rawAnchor struct {
	Href           string                `json:"href"`
	Text           string                `json:"text"`
	Selector       string                `json:"selector"`
	NearestHeading *models.AnchorHeading `json:"nearestHeading"`
	Visible        bool                  `json:"visible"`
	UTMParams      map[string]string     `json:"utmParams"`
	Classes        string                `json:"classes"`
	DataAttrs      string                `json:"dataAttrs"`
}

func parseAnchors(raw string, fallback models.DeviceVariant) ([]models.AnchorInfo, error) {
	if raw == "" {
		return nil, nil
	}
	var rawAnchors []rawAnchor
	if err := json.Unmarshal([]byte(raw), &rawAnchors); err != nil {
		return nil, fmt.Errorf("failed to decode anchors: %w", err)
	}
	anchors := make([]models.AnchorInfo, 0, len(rawAnchors))
	for _, a := range rawAnchors {
		variant := deviceVariantFromTokens(a.Classes + " " + a.DataAttrs)
		if variant == "" {
			variant = fallback
		}
		utm := a.UTMParams
		if len(utm) == 0 {
			utm = nil
		}
		anchors = append(anchors, models.AnchorInfo{
			Href:           a.Href,
			Text:           a.Text,
			Selector:       a.Selector,
			NearestHeading: a.NearestHeading,
			Visible:        a.Visible,
			UTMParams:      utm,
			DeviceVariant:  variant,
		})
	}
	return anchors, nil
}

var deviceKeywords = []struct {
	variant  models.DeviceVariant
	keywords []string
}{
	{models.DeviceDesktop, []string{"desktop", "laptop", "pc"}},
	{models.DeviceTablet, []string{"tablet", "ipad"}},
	{models.DeviceMobile, []string{"mobile", "phone", "iphone", "android"}},
}

// deviceVariantFromTokens matches class and data-attribute tokens against
// the device keyword sets, desktop taking precedence over tablet over
// mobile.
func deviceVariantFromTokens(tokens string) models.DeviceVariant {
	fields := strings.FieldsFunc(strings.ToLower(tokens), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t' || r == '\n'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	for _, group := range deviceKeywords {
		for _, kw := range group.keywords {
			if _, ok := set[kw]; ok {
				return group.variant
			}
		}
	}
	return ""
}

// hookRecord mirrors one entry of window.__trackingLog
type hookRecord struct {
	Platform string  `json:"platform"`
	Type     string  `json:"type"`
	Payload  []any   `json:"payload"`
	TS       float64 `json:"ts"`
	Element  string  `json:"element"`
}

func parseTrackingLog(raw string) ([]models.TrackingCall, error) {
	if raw == "" {
		return nil, nil
	}
	var records []hookRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("failed to decode tracking log: %w", err)
	}
	calls := make([]models.TrackingCall, 0, len(records))
	for _, rec := range records {
		call := models.TrackingCall{
			Platform: rec.Platform,
			Method:   rec.Type,
			Trigger:  "pageload",
			Element:  rec.Element,
		}
		if rec.Element != "" {
			call.Trigger = "click"
		}
		call.EventName, call.Payload = extractEventDetails(rec.Type, rec.Payload)
		calls = append(calls, call)
	}
	return calls, nil
}

// extractEventDetails pulls the event name and property object out of the
// recorded argument list, per platform calling convention.
func extractEventDetails(method string, args []any) (string, map[string]any) {
	switch {
	case method == "mixpanel.track" || method == "mixpanel.track_links" ||
		method == "mixpanel.track_forms" || method == "mixpanel.time_event":
		return stringArg(args, 0), mapArg(args, 1)
	case method == "mixpanel.push":
		// Pre-init queue calls arrive as ["track", name, props]
		if queued, ok := argAt(args, 0).([]any); ok {
			if stringArg(queued, 0) == "track" {
				return stringArg(queued, 1), mapArg(queued, 2)
			}
		}
		return "", nil
	case method == "gtag":
		if stringArg(args, 0) == "event" {
			return stringArg(args, 1), mapArg(args, 2)
		}
		return "", nil
	case method == "dataLayer.push":
		if m := mapArg(args, 0); m != nil {
			name, _ := m["event"].(string)
			return name, m
		}
		return "", nil
	case strings.HasPrefix(method, "mixpanel.people."):
		return "", mapArg(args, 0)
	default:
		return "", nil
	}
}

func argAt(args []any, i int) any {
	if i >= len(args) {
		return nil
	}
	return args[i]
}

func stringArg(args []any, i int) string {
	s, _ := argAt(args, i).(string)
	return s
}

func mapArg(args []any, i int) map[string]any {
	m, _ := argAt(args, i).(map[string]any)
	return m
}
