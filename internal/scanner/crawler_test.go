package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/models"
)

// fakeScanner is an in-test pageScanner with scripted results per URL
type fakeScanner struct {
	results map[string]*SingleScanResult
	errs    map[string]error
	scanned []string
}

func (f *fakeScanner) ScanPage(_ context.Context, _ *models.Job, pageURL string, _ StepFunc) (*SingleScanResult, error) {
	f.scanned = append(f.scanned, pageURL)
	if err, ok := f.errs[pageURL]; ok {
		return nil, err
	}
	if result, ok := f.results[pageURL]; ok {
		return result, nil
	}
	return &SingleScanResult{
		PageID:       common.NewPageID(),
		URL:          pageURL,
		HTTPStatus:   200,
		IssueSummary: &models.IssueSummary{SeoScore: 80},
	}, nil
}

func pageResult(url string, discovered ...string) *SingleScanResult {
	return &SingleScanResult{
		PageID:         common.NewPageID(),
		URL:            url,
		HTTPStatus:     200,
		DiscoveredURLs: discovered,
		IssueSummary:   &models.IssueSummary{SeoScore: 80},
	}
}

func noSitemapServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestCrawler(scanner pageScanner, config common.ScannerConfig) *Crawler {
	fetcher := NewFetcher(config, common.GetLogger())
	return NewCrawler(scanner, fetcher, config, common.GetLogger())
}

func onPageCollector(visited *[]string) func(*SingleScanResult) error {
	return func(result *SingleScanResult) error {
		*visited = append(*visited, result.URL)
		return nil
	}
}

func TestCrawler_BFSOrderAndDepth(t *testing.T) {
	server := noSitemapServer(t)
	base := server.URL

	fake := &fakeScanner{results: map[string]*SingleScanResult{
		base:        pageResult(base, base+"/a", base+"/b"),
		base + "/a": pageResult(base+"/a", base+"/a/deep"),
		base + "/b": pageResult(base + "/b"),
	}}
	config := staticScannerConfig()
	config.DefaultSiteDepth = 1
	crawler := newTestCrawler(fake, config)

	job := &models.Job{ID: "job_1", TargetURL: base, Mode: models.JobModeSite}
	var visited []string
	outcome, err := crawler.ScanSite(context.Background(), job, onPageCollector(&visited))
	require.NoError(t, err)

	// Depth 1 stops before /a/deep
	assert.Equal(t, []string{base, base + "/a", base + "/b"}, visited)
	assert.Equal(t, 3, outcome.PagesFinished)
	assert.Equal(t, 3, outcome.Summary.PagesAnalysed)
}

func TestCrawler_MaxPagesCap(t *testing.T) {
	server := noSitemapServer(t)
	base := server.URL

	links := make([]string, 10)
	for i := range links {
		links[i] = fmt.Sprintf("%s/p%d", base, i)
	}
	fake := &fakeScanner{results: map[string]*SingleScanResult{
		base: pageResult(base, links...),
	}}
	config := staticScannerConfig()
	config.MaxPages = 4
	crawler := newTestCrawler(fake, config)

	job := &models.Job{ID: "job_1", TargetURL: base, Mode: models.JobModeSite}
	var visited []string
	outcome, err := crawler.ScanSite(context.Background(), job, onPageCollector(&visited))
	require.NoError(t, err)
	assert.Equal(t, 4, outcome.PagesTotal)
	assert.Len(t, visited, 4)
}

func TestCrawler_NeverRevisitsNormalizedURL(t *testing.T) {
	server := noSitemapServer(t)
	base := server.URL

	// Both pages link back to the seed and to each other
	fake := &fakeScanner{results: map[string]*SingleScanResult{
		base:        pageResult(base, base+"/a", base+"/a"),
		base + "/a": pageResult(base+"/a", base, base+"/a"),
	}}
	crawler := newTestCrawler(fake, staticScannerConfig())

	job := &models.Job{ID: "job_1", TargetURL: base, Mode: models.JobModeSite}
	var visited []string
	_, err := crawler.ScanSite(context.Background(), job, onPageCollector(&visited))
	require.NoError(t, err)
	assert.Equal(t, []string{base, base + "/a"}, visited)
}

func TestCrawler_PageFailureContinues(t *testing.T) {
	server := noSitemapServer(t)
	base := server.URL

	fake := &fakeScanner{
		results: map[string]*SingleScanResult{
			base:        pageResult(base, base+"/bad", base+"/good"),
			base + "/good": pageResult(base + "/good"),
		},
		errs: map[string]error{
			base + "/bad": &PageError{URL: base + "/bad", Err: errors.New("fetch timed out")},
		},
	}
	crawler := newTestCrawler(fake, staticScannerConfig())

	job := &models.Job{ID: "job_1", TargetURL: base, Mode: models.JobModeSite}
	var visited []string
	outcome, err := crawler.ScanSite(context.Background(), job, onPageCollector(&visited))
	require.NoError(t, err)

	// Failed page counts against the budget but yields no summary
	assert.Equal(t, []string{base, base + "/good"}, visited)
	assert.Equal(t, 3, outcome.PagesTotal)
	assert.Equal(t, 2, outcome.Summary.PagesAnalysed)
}

func TestCrawler_InfraErrorAborts(t *testing.T) {
	server := noSitemapServer(t)
	base := server.URL

	boom := errors.New("database is locked")
	fake := &fakeScanner{
		results: map[string]*SingleScanResult{
			base: pageResult(base, base+"/a"),
		},
		errs: map[string]error{base + "/a": boom},
	}
	crawler := newTestCrawler(fake, staticScannerConfig())

	job := &models.Job{ID: "job_1", TargetURL: base, Mode: models.JobModeSite}
	_, err := crawler.ScanSite(context.Background(), job, func(*SingleScanResult) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestCrawler_OnPageErrorPropagates(t *testing.T) {
	server := noSitemapServer(t)
	base := server.URL

	fake := &fakeScanner{results: map[string]*SingleScanResult{
		base: pageResult(base, base+"/a"),
	}}
	crawler := newTestCrawler(fake, staticScannerConfig())

	job := &models.Job{ID: "job_1", TargetURL: base, Mode: models.JobModeSite}
	_, err := crawler.ScanSite(context.Background(), job, func(*SingleScanResult) error {
		return ErrJobCancelled
	})
	assert.ErrorIs(t, err, ErrJobCancelled)
	assert.Len(t, fake.scanned, 1)
}

func TestCrawler_SitemapSeedsQueue(t *testing.T) {
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/from-sitemap</loc></url>
  <url><loc>https://elsewhere.com/ignored</loc></url>
</urlset>`, base)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	base = server.URL

	fake := &fakeScanner{results: map[string]*SingleScanResult{
		base:                   pageResult(base),
		base + "/from-sitemap": pageResult(base + "/from-sitemap"),
	}}
	crawler := newTestCrawler(fake, staticScannerConfig())

	job := &models.Job{ID: "job_1", TargetURL: base, Mode: models.JobModeSite}
	var visited []string
	_, err := crawler.ScanSite(context.Background(), job, onPageCollector(&visited))
	require.NoError(t, err)

	// Seed first, then the same-host sitemap entry; the foreign host is dropped
	assert.Equal(t, []string{base, base + "/from-sitemap"}, visited)
}
