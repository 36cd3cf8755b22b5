package analyzer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/seoscan/internal/models"
)

func TestAnalyzeLinks_SamplePage(t *testing.T) {
	links := AnalyzeLinks(samplePageHTML, "https://example.com")

	assert.Equal(t, 2, links.InternalLinks)
	assert.Equal(t, 1, links.ExternalLinks)
	assert.Equal(t, 1, links.UTM.TrackedLinks)
	assert.Equal(t, 1, links.UTM.MissingUTM)

	require.NotEmpty(t, links.UTM.Examples)
	first := links.UTM.Examples[0]
	require.NotNil(t, first.Heading)
	assert.Equal(t, "h1", first.Heading.Tag)
	assert.Equal(t, "Heading", first.Heading.Text)
	assert.Equal(t, models.DeviceDesktop, first.DeviceVariant)
	assert.Equal(t, "newsletter", first.Params["utm_source"])
	assert.Equal(t, "test", first.Params["utm_campaign"])
}

func TestAnalyzeLinks_DeviceVariants(t *testing.T) {
	html := `<body><h2>CTAs</h2>` +
		`<a class="desktop-cta" data-viewport="desktop" href="/cta?utm_source=desktop">Desktop</a>` +
		`<a class="mobile-cta" data-device="mobile" href="/cta?utm_source=mobile">Mobile</a></body>`

	links := AnalyzeLinks(html, "https://example.com")

	require.Len(t, links.UTM.Examples, 2)
	assert.Equal(t, 2, links.UTM.TrackedLinks)
	assert.Equal(t, models.DeviceDesktop, links.UTM.Examples[0].DeviceVariant)
	assert.Equal(t, models.DeviceMobile, links.UTM.Examples[1].DeviceVariant)
}

func TestAnalyzeLinks_DiscoveredURLsNormalized(t *testing.T) {
	html := `<body>` +
		`<a href="/page/">Slash</a>` +
		`<a href="/page#section">Fragment</a>` +
		`<a href="/page">Plain</a>` +
		`<a href="https://other.com/x">External</a></body>`

	links := AnalyzeLinks(html, "https://example.com")

	assert.Equal(t, []string{"https://example.com/page"}, links.DiscoveredURLs)
	assert.Equal(t, 3, links.InternalLinks)
	assert.Equal(t, 1, links.ExternalLinks)
}

func TestAnalyzeLinks_DiscoveredURLsCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<body>")
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&sb, `<a href="/page-%d">p</a>`, i)
	}
	sb.WriteString("</body>")

	links := AnalyzeLinks(sb.String(), "https://example.com")
	assert.Len(t, links.DiscoveredURLs, 200)
	assert.Equal(t, 250, links.InternalLinks)
}

func TestAnalyzeLinks_SkipsUnusableHrefs(t *testing.T) {
	html := `<body><a href="mailto:x@y.com">mail</a><a href="javascript:void(0)">js</a><a href="">empty</a><a>none</a></body>`
	links := AnalyzeLinks(html, "https://example.com")

	assert.Equal(t, 0, links.InternalLinks)
	assert.Equal(t, 0, links.ExternalLinks)
}

func TestAnalyzeLinks_UTMCaseInsensitive(t *testing.T) {
	html := `<body><a href="/p?UTM_Source=promo&other=1">x</a></body>`
	links := AnalyzeLinks(html, "https://example.com")

	assert.Equal(t, 1, links.UTM.TrackedLinks)
	require.Len(t, links.UTM.Examples, 1)
	assert.Equal(t, "promo", links.UTM.Examples[0].Params["utm_source"])
	assert.NotContains(t, links.UTM.Examples[0].Params, "other")
}

func TestAnalyzeLinks_Idempotent(t *testing.T) {
	first := AnalyzeLinks(samplePageHTML, "https://example.com")
	second := AnalyzeLinks(samplePageHTML, "https://example.com")
	assert.Equal(t, first, second)
}

func TestAnalyzeLinks_HeadingAttributionAdvances(t *testing.T) {
	html := `<body><h1>One</h1><a href="/a">a</a><h2>Two</h2><a href="/b">b</a></body>`
	links := AnalyzeLinks(html, "https://example.com")

	require.Len(t, links.UTM.Examples, 2)
	assert.Equal(t, "One", links.UTM.Examples[0].Heading.Text)
	assert.Equal(t, "Two", links.UTM.Examples[1].Heading.Text)
	assert.Equal(t, "h2", links.UTM.Examples[1].Heading.Tag)
}
