// Package extract turns configured sources into text units. A unit is one
// page of a PDF or one rendered page of a web source; the chunker slices
// units further downstream.
package extract

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/asaifulas/ragcrawler/internal/config"
	"github.com/asaifulas/ragcrawler/internal/source"
)

// Unit is one extracted piece of text with its provenance. Page is nil for
// content that has no page structure (web pages, plain text files).
type Unit struct {
	Text        string
	Page        *int
	URL         string
	SourceURL   string
	PDFURL      string
	LocalSource string
}

// ExtractionError marks a source that could not be processed. The pipeline
// logs it and moves on to the next source.
type ExtractionError struct {
	Kind     string
	Location string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s %s: %v", e.Kind, e.Location, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor dispatches each source kind to its extraction strategy.
type Extractor struct {
	fetcher     *Fetcher
	renderer    Renderer
	maxPDFPages int
}

// NewExtractor builds an Extractor. renderer may be nil; JavaScript sources
// then fall back to static fetching with a warning.
func NewExtractor(cfg *config.Config, fetcher *Fetcher, renderer Renderer) *Extractor {
	return &Extractor{
		fetcher:     fetcher,
		renderer:    renderer,
		maxPDFPages: cfg.MaxPagesPerPDF,
	}
}

// Extract produces the text units for one source.
func (e *Extractor) Extract(ctx context.Context, src source.Descriptor) ([]Unit, error) {
	log.Printf("extracting %s source: %s", src.Kind, src.Location)
	switch src.Kind {
	case source.KindRemotePDF:
		return e.extractRemotePDF(ctx, src)
	case source.KindLocalPDF:
		return e.extractLocal(ctx, src)
	case source.KindWebPage:
		return e.extractWebPage(ctx, src)
	case source.KindPDFLinksInPage:
		return e.extractPDFLinksInPage(ctx, src)
	default:
		return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: fmt.Errorf("unknown source kind")}
	}
}

// downloadPDF tries the plain HTTP client first and falls back to a
// browser-context fetch for hosts that refuse non-browser clients or serve
// the file behind a JavaScript viewer.
func (e *Extractor) downloadPDF(ctx context.Context, url, referer string) ([]byte, error) {
	data, err := e.fetcher.DownloadPDF(ctx, url, referer)
	if err == nil {
		return data, nil
	}
	if e.renderer == nil {
		return nil, err
	}
	log.Printf("direct download of %s failed (%v), retrying through the browser", url, err)
	data, berr := e.renderer.FetchPDF(ctx, url, referer)
	if berr != nil {
		return nil, fmt.Errorf("%v; browser retry: %w", err, berr)
	}
	return data, nil
}

func (e *Extractor) extractRemotePDF(ctx context.Context, src source.Descriptor) ([]Unit, error) {
	data, err := e.downloadPDF(ctx, src.Location, "")
	if err != nil {
		return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
	}
	units, err := pdfPageUnits(data, src.Location, e.maxPDFPages)
	if err != nil {
		return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
	}
	for i := range units {
		units[i].URL = src.Location
	}
	return units, nil
}

func (e *Extractor) extractPDFLinksInPage(ctx context.Context, src source.Descriptor) ([]Unit, error) {
	links, err := e.discoverPDFLinks(ctx, src)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		log.Printf("no PDF links found at %s", src.Location)
		return nil, nil
	}
	log.Printf("found %d PDF links at %s", len(links), src.Location)

	// Downloads run concurrently; the fetcher's rate limiter keeps the
	// actual request rate polite. perLink preserves document order.
	perLink := make([][]Unit, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, link := range links {
		i, link := i, link
		g.Go(func() error {
			data, err := e.downloadPDF(gctx, link, src.Location)
			if err != nil {
				log.Printf("skipping linked PDF %s: %v", link, err)
				return nil
			}
			pageUnits, err := pdfPageUnits(data, link, e.maxPDFPages)
			if err != nil {
				log.Printf("skipping linked PDF %s: %v", link, err)
				return nil
			}
			for j := range pageUnits {
				pageUnits[j].URL = link
				pageUnits[j].PDFURL = link
				pageUnits[j].SourceURL = src.Location
			}
			perLink[i] = pageUnits
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
	}

	var units []Unit
	for _, pageUnits := range perLink {
		units = append(units, pageUnits...)
	}
	return units, nil
}

// ResolvePDFURLs lists the PDF URLs a run would download, without fetching
// any of them. Backs the crawler's -url-only mode.
func (e *Extractor) ResolvePDFURLs(ctx context.Context, src source.Descriptor) ([]string, error) {
	switch src.Kind {
	case source.KindRemotePDF:
		return []string{src.Location}, nil
	case source.KindPDFLinksInPage:
		return e.discoverPDFLinks(ctx, src)
	default:
		return nil, nil
	}
}

// discoverPDFLinks resolves the PDF URLs a listing exposes, walking its
// pagination when the source configures it.
func (e *Extractor) discoverPDFLinks(ctx context.Context, src source.Descriptor) ([]string, error) {
	doc, err := e.fetchDocument(ctx, src)
	if err != nil {
		return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
	}
	links, err := collectPDFLinks(doc, pdfLinkSelector(src), src.Location)
	if err != nil {
		return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
	}
	if src.Pagination == nil || !src.Pagination.Enabled {
		return links, nil
	}

	seen := map[string]bool{}
	for _, l := range links {
		seen[l] = true
	}
	visited := map[string]bool{src.Location: true}
	pageURL := src.Location
	referer := ""
	for pageNum := 2; pageNum <= src.Pagination.MaxPages; pageNum++ {
		next := nextPageURL(doc, src.Pagination, pageURL)
		if next == "" || visited[next] {
			break
		}
		visited[next] = true
		referer, pageURL = pageURL, next

		doc, err = e.fetcher.GetHTML(ctx, pageURL, referer)
		if err != nil {
			log.Printf("stopping PDF link discovery at %s: %v", pageURL, err)
			break
		}
		more, err := collectPDFLinks(doc, pdfLinkSelector(src), pageURL)
		if err != nil {
			break
		}
		for _, l := range more {
			if !seen[l] {
				seen[l] = true
				links = append(links, l)
			}
		}
	}
	return links, nil
}

// Selector accessors tolerate descriptors built outside source.Load, which
// applies these defaults itself.

func contentSelector(src source.Descriptor) string {
	if src.Selectors != nil && src.Selectors.Content != "" {
		return src.Selectors.Content
	}
	return "body"
}

func pdfLinkSelector(src source.Descriptor) string {
	if src.Selectors != nil && src.Selectors.PDFLinks != "" {
		return src.Selectors.PDFLinks
	}
	return `a[href$='.pdf']`
}
