package scanner

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/analyzer"
	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/models"
)

// pageScanner is the slice of the pipeline the crawler needs
type pageScanner interface {
	ScanPage(ctx context.Context, job *models.Job, pageURL string, step StepFunc) (*SingleScanResult, error)
}

// CrawlOutcome is the site-level rollup of one BFS crawl
type CrawlOutcome struct {
	Summary       *models.AggregatedSummary
	PagesTotal    int
	PagesFinished int
}

// Crawler expands one site job into page scans, breadth first from the
// seed URL plus the site's sitemap.
type Crawler struct {
	pipeline pageScanner
	fetcher  *Fetcher
	config   common.ScannerConfig
	logger   arbor.ILogger
}

// NewCrawler wires the site crawler
func NewCrawler(pipeline pageScanner, fetcher *Fetcher, config common.ScannerConfig, logger arbor.ILogger) *Crawler {
	return &Crawler{
		pipeline: pipeline,
		fetcher:  fetcher,
		config:   config,
		logger:   logger,
	}
}

type crawlItem struct {
	url   string
	depth int
}

// ScanSite runs a depth-limited, page-capped BFS over the job's site.
// onPage fires after every successfully scanned page; its error aborts the
// crawl (the executor uses this for cancellation). Page-level failures are
// downgraded to failed page rows and the crawl continues; infrastructure
// errors abort.
func (c *Crawler) ScanSite(ctx context.Context, job *models.Job, onPage func(*SingleScanResult) error) (*CrawlOutcome, error) {
	depthLimit := c.config.DefaultSiteDepth
	maxPages := c.config.MaxPages
	if job.Options != nil {
		if job.Options.SiteDepth > 0 {
			depthLimit = job.Options.SiteDepth
		}
		if job.Options.MaxPages > 0 {
			maxPages = job.Options.MaxPages
		}
	}

	seed, err := common.NormalizeURL(job.TargetURL)
	if err != nil {
		return nil, &PageError{URL: job.TargetURL, Err: err}
	}

	visited := map[string]struct{}{seed: {}}
	queue := []crawlItem{{url: seed, depth: 0}}

	for _, loc := range c.fetchSitemap(ctx, job, seed) {
		if len(queue) >= maxPages {
			break
		}
		if _, ok := visited[loc]; ok {
			continue
		}
		visited[loc] = struct{}{}
		queue = append(queue, crawlItem{url: loc, depth: 1})
	}

	var summaries []*models.IssueSummary
	processed := 0

	for len(queue) > 0 && processed < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := queue[0]
		queue = queue[1:]

		result, err := c.pipeline.ScanPage(ctx, job, item.url, nil)
		if err != nil {
			if !IsPageError(err) {
				return nil, err
			}
			c.logger.Warn().Err(err).
				Str("job_id", job.ID).
				Str("url", item.url).
				Msg("Page failed, continuing crawl")
			processed++
			continue
		}
		processed++

		if err := onPage(result); err != nil {
			return nil, err
		}
		summaries = append(summaries, result.IssueSummary)

		if item.depth+1 > depthLimit {
			continue
		}
		for _, discovered := range result.DiscoveredURLs {
			if _, ok := visited[discovered]; ok {
				continue
			}
			visited[discovered] = struct{}{}
			queue = append(queue, crawlItem{url: discovered, depth: item.depth + 1})
		}
	}

	c.logger.Info().
		Str("job_id", job.ID).
		Int("processed", processed).
		Int("analysed", len(summaries)).
		Msg("Site crawl finished")

	return &CrawlOutcome{
		Summary:       analyzer.AggregateSummaries(summaries),
		PagesTotal:    processed,
		PagesFinished: processed,
	}, nil
}

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// fetchSitemap pulls /sitemap.xml from the seed's origin and returns its
// normalized same-host locations. A missing or malformed sitemap is not an
// error, the crawl just starts from the seed alone.
func (c *Crawler) fetchSitemap(ctx context.Context, job *models.Job, seed string) []string {
	parsed, err := url.Parse(seed)
	if err != nil {
		return nil
	}
	sitemapURL := parsed.Scheme + "://" + parsed.Host + "/sitemap.xml"

	userAgent, timeoutMs := "", 0
	if job.Options != nil {
		userAgent = job.Options.UserAgent
		timeoutMs = job.Options.RequestTimeoutMs
	}
	fetched, err := c.fetcher.Fetch(ctx, sitemapURL, c.fetcher.Params(userAgent, timeoutMs))
	if err != nil || fetched.HTTPStatus != 200 {
		c.logger.Debug().Str("url", sitemapURL).Msg("No usable sitemap")
		return nil
	}

	var urlset sitemapURLSet
	if err := xml.Unmarshal([]byte(fetched.HTML), &urlset); err != nil {
		c.logger.Debug().Err(err).Str("url", sitemapURL).Msg("Failed to parse sitemap")
		return nil
	}

	var locs []string
	for _, entry := range urlset.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" || !common.SameHost(seed, loc) {
			continue
		}
		if normalized, err := common.NormalizeURL(loc); err == nil {
			locs = append(locs, normalized)
		}
	}
	return locs
}
