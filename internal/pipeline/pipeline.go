// Package pipeline runs the write path end to end: read sources, extract
// text, chunk it, embed the chunks and push the vectors into the index.
// Sources are processed sequentially; one bad source never aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/asaifulas/ragcrawler/internal/chunker"
	"github.com/asaifulas/ragcrawler/internal/config"
	"github.com/asaifulas/ragcrawler/internal/embed"
	"github.com/asaifulas/ragcrawler/internal/extract"
	"github.com/asaifulas/ragcrawler/internal/models"
	"github.com/asaifulas/ragcrawler/internal/source"
	"github.com/asaifulas/ragcrawler/internal/upload"
)

// KindStats is the per-source-type tally printed at the end of a run.
type KindStats struct {
	Sources int
	Failed  int
	Units   int
	Chunks  int
}

// Report is what one pipeline run produced.
type Report struct {
	ByKind       map[string]KindStats
	Chunks       int
	ChunksPath   string
	Embedded     int
	FailedIDs    []string
	SkippedEmpty int
	Upload       *upload.Report
}

// Options selects which stages of a run execute.
type Options struct {
	// TestMode stops after extracting and chunking; nothing is embedded or
	// uploaded. The chunks artifact is still written.
	TestMode bool
	// FromChunks skips extraction and loads a previously saved chunks file.
	FromChunks string
}

// Pipeline wires the crawl stages together.
type Pipeline struct {
	cfg         *config.Config
	extractor   *extract.Extractor
	batcher     *embed.Batcher
	coordinator *upload.Coordinator
}

func New(cfg *config.Config, extractor *extract.Extractor, batcher *embed.Batcher, coordinator *upload.Coordinator) (*Pipeline, error) {
	// Fail the chunk geometry up front rather than per source.
	if _, err := chunker.Chunk("x", cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, extractor: extractor, batcher: batcher, coordinator: coordinator}, nil
}

// Run executes the crawl per opts and returns the report. Only configuration
// errors and context cancellation abort a run; source, embedding and batch
// failures are recorded in the report instead.
func (p *Pipeline) Run(ctx context.Context, sources []source.Descriptor, opts Options) (*Report, error) {
	report := &Report{ByKind: map[string]KindStats{}}

	var chunks []models.Chunk
	if opts.FromChunks != "" {
		loaded, err := LoadChunks(opts.FromChunks)
		if err != nil {
			return nil, err
		}
		chunks = loaded
		log.Printf("loaded %d chunks from %s", len(chunks), opts.FromChunks)
	} else {
		chunks = p.crawl(ctx, sources, report)
		path, err := SaveChunks(p.cfg.OutputDir, chunks)
		if err != nil {
			return nil, err
		}
		report.ChunksPath = path
		log.Printf("saved %d chunks to %s", len(chunks), path)
	}
	report.Chunks = len(chunks)

	if opts.TestMode {
		p.printSummary(report)
		return report, nil
	}
	if len(chunks) == 0 {
		log.Printf("no chunks to embed, nothing to upload")
		p.printSummary(report)
		return report, nil
	}

	embedded, err := p.batcher.EmbedChunks(ctx, chunks)
	if err != nil {
		return report, err
	}
	report.Embedded = len(embedded.Records)
	report.FailedIDs = embedded.FailedIDs
	report.SkippedEmpty = embedded.SkippedEmpty

	uploadReport, err := p.coordinator.Upload(ctx, embedded.Records)
	if err != nil {
		return report, err
	}
	report.Upload = uploadReport

	p.printSummary(report)
	return report, nil
}

// ResolvePDFURLs lists every PDF URL the configured sources would download
// and saves the list, without downloading or embedding anything.
func (p *Pipeline) ResolvePDFURLs(ctx context.Context, sources []source.Descriptor) ([]string, error) {
	var urls []string
	for _, src := range sources {
		found, err := p.extractor.ResolvePDFURLs(ctx, src)
		if err != nil {
			log.Printf("resolving %s %s failed: %v", src.Kind, src.Location, err)
			continue
		}
		urls = append(urls, found...)
	}
	path, err := SavePDFURLs(p.cfg.OutputDir, urls)
	if err != nil {
		return urls, err
	}
	log.Printf("saved %d PDF urls to %s", len(urls), path)
	return urls, nil
}

func (p *Pipeline) crawl(ctx context.Context, sources []source.Descriptor, report *Report) []models.Chunk {
	var chunks []models.Chunk
	for _, src := range sources {
		stats := report.ByKind[src.Kind]
		stats.Sources++

		units, err := p.extractor.Extract(ctx, src)
		if err != nil {
			log.Printf("source failed: %v", err)
			stats.Failed++
			report.ByKind[src.Kind] = stats
			continue
		}

		for _, unit := range units {
			stats.Units++
			if unit.Text == "" {
				continue
			}
			windows, err := chunker.Chunk(unit.Text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
			if err != nil {
				// Geometry was validated in New; this cannot happen per unit.
				log.Printf("chunking failed for %s: %v", src.Location, err)
				continue
			}
			for _, w := range windows {
				chunks = append(chunks, models.Chunk{
					Text:        w,
					Page:        unit.Page,
					URL:         unit.URL,
					SourceType:  src.Kind,
					SourceURL:   unit.SourceURL,
					PDFURL:      unit.PDFURL,
					LocalSource: unit.LocalSource,
					ChunkIndex:  len(chunks),
					Description: src.Description,
				})
				stats.Chunks++
			}
		}
		report.ByKind[src.Kind] = stats
	}
	return chunks
}

func (p *Pipeline) printSummary(r *Report) {
	kinds := make([]string, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		s := r.ByKind[k]
		log.Printf("summary %-17s sources=%d failed=%d units=%d chunks=%d", k, s.Sources, s.Failed, s.Units, s.Chunks)
	}
	line := fmt.Sprintf("summary total: %d chunks", r.Chunks)
	if r.Embedded > 0 || len(r.FailedIDs) > 0 {
		line += fmt.Sprintf(", %d embedded, %d failed, %d empty skipped", r.Embedded, len(r.FailedIDs), r.SkippedEmpty)
	}
	if r.Upload != nil && r.Upload.Mode != "" {
		line += fmt.Sprintf(", %d uploaded via %s", r.Upload.Upserted, r.Upload.Mode)
	}
	log.Print(line)
}
