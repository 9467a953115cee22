package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// SECTickersURL maps every EDGAR filer with a ticker to its CIK.
	SECTickersURL = "https://www.sec.gov/files/company_tickers.json"
	// SP500URL lists the S&P 500 constituents with their CIKs.
	SP500URL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"
)

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

func fetch(ctx context.Context, client *http.Client, url, userAgent string) (io.ReadCloser, error) {
	if client == nil {
		client = defaultHTTPClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// SECTickers reads SEC's company_tickers.json.
type SECTickers struct {
	URL       string
	UserAgent string
	Client    *http.Client
}

// Companies implements Source.
func (s SECTickers) Companies(ctx context.Context) ([]Company, error) {
	url := s.URL
	if url == "" {
		url = SECTickersURL
	}
	body, err := fetch(ctx, s.Client, url, s.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker mapping: %w", err)
	}
	defer body.Close()

	// Response structure: { "0": {"cik_str": 320193, "ticker": "AAPL", "title": "..."}, ... }
	var mapping map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.NewDecoder(body).Decode(&mapping); err != nil {
		return nil, fmt.Errorf("failed to parse ticker mapping: %w", err)
	}

	// Keys are positions ranked by SEC; keep that order.
	positions := make([]int, 0, len(mapping))
	byPos := make(map[int]Company, len(mapping))
	for k, entry := range mapping {
		pos, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		positions = append(positions, pos)
		byPos[pos] = Company{CIK: PadCIK(strconv.Itoa(entry.CIK)), Ticker: entry.Ticker, Title: entry.Title}
	}
	sort.Ints(positions)

	out := make([]Company, 0, len(positions))
	for _, p := range positions {
		out = append(out, byPos[p])
	}
	return out, nil
}

// IndexPage scrapes an index membership page: the first table whose header
// row names a symbol column. Security/Company and CIK columns are used when
// present.
type IndexPage struct {
	URL       string
	UserAgent string
	Client    *http.Client
}

// Companies implements Source.
func (p IndexPage) Companies(ctx context.Context) ([]Company, error) {
	url := p.URL
	if url == "" {
		url = SP500URL
	}
	body, err := fetch(ctx, p.Client, url, p.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index page: %w", err)
	}
	defer body.Close()
	return ParseIndexPage(body)
}

// ParseIndexPage extracts constituents from an index membership HTML page.
func ParseIndexPage(r io.Reader) ([]Company, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}

	var out []Company
	found := false
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		symbolCol, titleCol, cikCol := -1, -1, -1
		table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
			switch h := strings.ToLower(strings.TrimSpace(th.Text())); {
			case h == "symbol" || h == "ticker" || h == "ticker symbol":
				symbolCol = i
			case h == "security" || h == "company" || h == "name":
				titleCol = i
			case h == "cik":
				cikCol = i
			}
		})
		if symbolCol < 0 {
			return true
		}
		found = true

		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() <= symbolCol {
				return
			}
			cell := func(i int) string {
				if i < 0 || i >= cells.Length() {
					return ""
				}
				return strings.Join(strings.Fields(cells.Eq(i).Text()), " ")
			}
			ticker := cell(symbolCol)
			if ticker == "" {
				return
			}
			out = append(out, Company{Ticker: ticker, Title: cell(titleCol), CIK: PadCIK(cell(cikCol))})
		})
		return false
	})
	if !found {
		return nil, fmt.Errorf("no constituents table on index page")
	}
	return out, nil
}
