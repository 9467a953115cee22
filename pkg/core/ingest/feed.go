package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"filing_screener/pkg/core/registry"

	"github.com/jmhodges/clock"
	"github.com/mmcdole/gofeed"
)

// accessionPattern pulls the accession number out of an entry id such as
// urn:tag:sec.gov,2008:accession-number=0000320193-24-000123.
var accessionPattern = regexp.MustCompile(`accession-number=([0-9]{10}-[0-9]{2}-[0-9]{6})`)

// FeedClient reads a company's EDGAR Atom feed. The feed is a cheap way to
// see new filings; it carries the filing date but not the period-end.
type FeedClient struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	parser     *gofeed.Parser
	throttler  *Throttler
}

// NewFeedClient creates a feed client. An empty baseURL uses sec.gov.
func NewFeedClient(userAgent, baseURL string) *FeedClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if baseURL == "" {
		baseURL = SECArchivesBase
	}
	return &FeedClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
		baseURL:    strings.TrimRight(baseURL, "/"),
		parser:     gofeed.NewParser(),
		throttler:  NewThrottler(clock.New(), 105*time.Millisecond, 1),
	}
}

// Latest returns up to limit filings of form type form, newest first.
func (c *FeedClient) Latest(ctx context.Context, company registry.Company, form string, limit int) ([]Filing, error) {
	q := url.Values{}
	q.Set("action", "getcompany")
	q.Set("CIK", registry.PadCIK(company.CIK))
	q.Set("type", form)
	q.Set("dateb", "")
	q.Set("owner", "include")
	q.Set("count", "40")
	q.Set("output", "atom")
	feedURL := c.baseURL + "/cgi-bin/browse-edgar?" + q.Encode()

	if _, err := c.throttler.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := get(ctx, c.httpClient, feedURL, map[string]string{
		"User-Agent": c.userAgent,
		"Accept":     "application/atom+xml",
	})
	if err != nil {
		return nil, fmt.Errorf("edgar feed %s: %w", company.Ticker, err)
	}

	feed, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse edgar feed %s: %w", company.Ticker, err)
	}

	var out []Filing
	for _, item := range feed.Items {
		m := accessionPattern.FindStringSubmatch(item.GUID)
		if m == nil {
			m = accessionPattern.FindStringSubmatch(item.Link)
		}
		if m == nil {
			continue
		}
		f := Filing{AccessionNumber: m[1], FormType: form}
		if len(item.Categories) > 0 {
			f.FormType = item.Categories[0]
		}
		switch {
		case item.UpdatedParsed != nil:
			f.FilingDate = truncateDay(*item.UpdatedParsed)
		case item.PublishedParsed != nil:
			f.FilingDate = truncateDay(*item.PublishedParsed)
		}
		out = append(out, f)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
