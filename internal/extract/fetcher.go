package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/asaifulas/ragcrawler/internal/config"
)

// pdfMagic is the header every real PDF starts with. Servers occasionally
// answer a .pdf URL with an HTML error page and a 200.
var pdfMagic = []byte("%PDF")

// Fetcher is the crawl's single HTTP front door. Every request goes through
// one rate limiter so the crawl stays polite regardless of source kind.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func NewFetcher(cfg *config.Config) *Fetcher {
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
		userAgent: cfg.UserAgent,
	}
}

func (f *Fetcher) do(ctx context.Context, url, referer string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return resp, nil
}

// GetHTML fetches a page and parses it into a goquery document.
func (f *Fetcher) GetHTML(ctx context.Context, url, referer string) (*goquery.Document, error) {
	resp, err := f.do(ctx, url, referer)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// DownloadPDF fetches a PDF and verifies the %PDF magic bytes before
// returning the body. The referer rides along because some hosts refuse PDF
// requests that do not come from their own listing pages.
func (f *Fetcher) DownloadPDF(ctx context.Context, url, referer string) ([]byte, error) {
	resp, err := f.do(ctx, url, referer)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("%s is not a PDF (missing %%PDF header)", url)
	}
	return data, nil
}
