package models

// AnchorHeading is the heading an anchor was attributed to
type AnchorHeading struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// AnchorInfo describes one anchor element observed on a rendered page
type AnchorInfo struct {
	Href           string            `json:"href"`
	Text           string            `json:"text"`
	Selector       string            `json:"selector"`
	NearestHeading *AnchorHeading    `json:"nearestHeading,omitempty"`
	Visible        bool              `json:"visible"`
	UTMParams      map[string]string `json:"utmParams,omitempty"`
	DeviceVariant  DeviceVariant     `json:"deviceVariant,omitempty"`
}

// TrackingCall is one intercepted analytics call from the rendered page
type TrackingCall struct {
	Platform  string         `json:"platform"` // "mixpanel" or "ga"
	Method    string         `json:"method"`   // e.g. "track", "gtag", "dataLayer.push"
	EventName string         `json:"eventName,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Trigger   string         `json:"trigger"`           // "pageload" or "click"
	Element   string         `json:"element,omitempty"` // Selector of the clicked anchor, when triggered by the click audit
}

// RenderResult is everything the browser worker extracts from one page load
type RenderResult struct {
	URL           string         `json:"url"`
	Profile       DeviceVariant  `json:"profile"`
	HTML          string         `json:"html"`
	HTTPStatus    int            `json:"httpStatus"`
	LoadTimeMs    int64          `json:"loadTimeMs"`
	Anchors       []AnchorInfo   `json:"anchors,omitempty"`
	TrackingCalls []TrackingCall `json:"trackingCalls,omitempty"`
}
