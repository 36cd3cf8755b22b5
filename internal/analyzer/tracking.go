package analyzer

import (
	"regexp"

	"github.com/ternarybob/seoscan/internal/models"
)

// Platform names used across tracking findings
const (
	PlatformMixpanel = "mixpanel"
	PlatformGA       = "ga"
)

var (
	mixpanelCallRe = regexp.MustCompile(`(?s)mixpanel\.(track_links|track_forms|time_event|track|init|identify|alias|register|reset)\s*\(\s*(?:["']([^"']*)["'])?`)
	mixpanelPplRe  = regexp.MustCompile(`(?s)mixpanel\.people\.(set_once|set|increment)\s*\(`)
	gtagEventRe    = regexp.MustCompile(`(?s)gtag\s*\(\s*["']event["']\s*,\s*["']([^"']+)["']`)
	gtagAnyRe      = regexp.MustCompile(`(?s)gtag\s*\(\s*["'](?:config|js|set|consent)["']`)
	dataLayerRe    = regexp.MustCompile(`(?s)dataLayer\.push\s*\(\s*\{[^}]*?["']?event["']?\s*:\s*["']([^"']+)["']`)
	mixpanelSDKRe  = regexp.MustCompile(`(?i)<script[^>]+src\s*=\s*["'][^"']*mixpanel[^"']*["']`)
	gaSDKRe        = regexp.MustCompile(`(?i)<script[^>]+src\s*=\s*["'][^"']*(?:googletagmanager\.com|google-analytics\.com|gtag/js)[^"']*["']`)
)

// AnalyzeTracking pattern-matches analytics instrumentation in raw HTML.
// Specific calls become one event each; a platform whose SDK is referenced
// without any parsed call still yields a single detected event so coverage
// checks see the platform as present.
func AnalyzeTracking(html string) []models.TrackingEvent {
	var events []models.TrackingEvent

	for _, m := range mixpanelCallRe.FindAllStringSubmatch(html, -1) {
		events = append(events, models.TrackingEvent{
			Element:   "script",
			Trigger:   "load",
			Platform:  PlatformMixpanel,
			EventName: m[2],
			Status:    models.TrackingDetected,
			Payload:   map[string]any{"method": "mixpanel." + m[1]},
		})
	}
	for _, m := range mixpanelPplRe.FindAllStringSubmatch(html, -1) {
		events = append(events, models.TrackingEvent{
			Element:  "script",
			Trigger:  "load",
			Platform: PlatformMixpanel,
			Status:   models.TrackingDetected,
			Payload:  map[string]any{"method": "mixpanel.people." + m[1]},
		})
	}
	for _, m := range gtagEventRe.FindAllStringSubmatch(html, -1) {
		events = append(events, models.TrackingEvent{
			Element:   "script",
			Trigger:   "load",
			Platform:  PlatformGA,
			EventName: m[1],
			Status:    models.TrackingDetected,
			Payload:   map[string]any{"method": "gtag"},
		})
	}
	for _, m := range dataLayerRe.FindAllStringSubmatch(html, -1) {
		events = append(events, models.TrackingEvent{
			Element:   "script",
			Trigger:   "load",
			Platform:  PlatformGA,
			EventName: m[1],
			Status:    models.TrackingDetected,
			Payload:   map[string]any{"method": "dataLayer.push"},
		})
	}

	hasMixpanel, hasGA := false, false
	for _, e := range events {
		switch e.Platform {
		case PlatformMixpanel:
			hasMixpanel = true
		case PlatformGA:
			hasGA = true
		}
	}

	// SDK tag or generic call present without a parsed event call
	if !hasMixpanel && mixpanelSDKRe.MatchString(html) {
		events = append(events, models.TrackingEvent{
			Element:  "script",
			Trigger:  "load",
			Platform: PlatformMixpanel,
			Status:   models.TrackingDetected,
			Payload:  map[string]any{"method": "sdk"},
		})
	}
	if !hasGA && (gaSDKRe.MatchString(html) || gtagAnyRe.MatchString(html)) {
		events = append(events, models.TrackingEvent{
			Element:  "script",
			Trigger:  "load",
			Platform: PlatformGA,
			Status:   models.TrackingDetected,
			Payload:  map[string]any{"method": "sdk"},
		})
	}

	return events
}
