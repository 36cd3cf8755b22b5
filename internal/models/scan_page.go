package models

import (
	"encoding/json"
	"time"
)

// PageStatus represents the state of a single scanned page
type PageStatus string

const (
	PageStatusPending    PageStatus = "pending"
	PageStatusProcessing PageStatus = "processing"
	PageStatusCompleted  PageStatus = "completed"
	PageStatusFailed     PageStatus = "failed"
)

// DeviceVariant identifies the device class an anchor or tracking event was
// observed on, inferred from CSS classes / data attributes or from the
// browser profile used to fetch the page.
type DeviceVariant string

const (
	DeviceDesktop DeviceVariant = "desktop"
	DeviceTablet  DeviceVariant = "tablet"
	DeviceMobile  DeviceVariant = "mobile"
)

// Page is one scanned URL inside a job. Pages are created in `processing`
// by the page pipeline and transition exactly once to `completed` or
// `failed`.
type Page struct {
	ID            string        `json:"id"`
	JobID         string        `json:"jobId"`
	URL           string        `json:"url"`
	Status        PageStatus    `json:"status"`
	HTTPStatus    int           `json:"httpStatus,omitempty"`
	LoadTimeMs    int64         `json:"loadTimeMs,omitempty"`
	IssueCounts   *IssueSummary `json:"issueCounts,omitempty"`
	DeviceVariant DeviceVariant `json:"deviceVariant,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// SeoMetrics holds the per-page SEO extraction (at most one row per page)
type SeoMetrics struct {
	ID                  string          `json:"id"`
	PageID              string          `json:"pageId"`
	Title               string          `json:"title,omitempty"`
	MetaDescription     string          `json:"metaDescription,omitempty"`
	Canonical           string          `json:"canonical,omitempty"`
	H1                  string          `json:"h1,omitempty"`
	RobotsBlocked       bool            `json:"robotsBlocked"`
	SchemaOrg           json.RawMessage `json:"schemaOrg,omitempty"`
	Score               int             `json:"score"`
	JSONLDScore         int             `json:"jsonLdScore"`
	JSONLDTypes         []string        `json:"jsonLdTypes,omitempty"`
	JSONLDIssues        json.RawMessage `json:"jsonLdIssues,omitempty"`
	HTMLStructureScore  int             `json:"htmlStructureScore"`
	HTMLStructureIssues json.RawMessage `json:"htmlStructureIssues,omitempty"`
}

// LinkMetrics holds the per-page link inventory (at most one row per page)
type LinkMetrics struct {
	ID            string          `json:"id"`
	PageID        string          `json:"pageId"`
	InternalLinks int             `json:"internalLinks"`
	ExternalLinks int             `json:"externalLinks"`
	UTMParams     json.RawMessage `json:"utmParams,omitempty"`
	BrokenLinks   int             `json:"brokenLinks"`
	Redirects     int             `json:"redirects"`
}

// TrackingEventStatus distinguishes statically detected calls from events
// observed firing in a live browser context.
type TrackingEventStatus string

const (
	TrackingDetected TrackingEventStatus = "detected"
	TrackingFired    TrackingEventStatus = "fired"
)

// TrackingEvent is one analytics call detected or fired on a page
type TrackingEvent struct {
	ID            string              `json:"id"`
	PageID        string              `json:"pageId"`
	Element       string              `json:"element"`
	Trigger       string              `json:"trigger"`
	EventName     string              `json:"eventName,omitempty"`
	Platform      string              `json:"platform"`
	DeviceVariant DeviceVariant       `json:"deviceVariant,omitempty"`
	Payload       map[string]any      `json:"payload,omitempty"`
	Status        TrackingEventStatus `json:"status"`
}

// PageWithMetrics is the composite read model returned by the query service
type PageWithMetrics struct {
	Page
	Seo      *SeoMetrics     `json:"seo,omitempty"`
	Links    *LinkMetrics    `json:"links,omitempty"`
	Tracking []TrackingEvent `json:"tracking,omitempty"`
}
