package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/asaifulas/ragcrawler/internal/config"
	"github.com/asaifulas/ragcrawler/internal/core/llm"
	objectclient "github.com/asaifulas/ragcrawler/internal/core/object-client"
	"github.com/asaifulas/ragcrawler/internal/core/vectorindex"
	"github.com/asaifulas/ragcrawler/internal/embed"
	"github.com/asaifulas/ragcrawler/internal/extract"
	"github.com/asaifulas/ragcrawler/internal/pipeline"
	"github.com/asaifulas/ragcrawler/internal/source"
	"github.com/asaifulas/ragcrawler/internal/upload"
)

func main() {
	var (
		sourcesPath = flag.String("sources", "", "path to the sources file (default from SOURCES_FILE)")
		testMode    = flag.Bool("test", false, "extract and chunk only; skip embedding and upload")
		urlOnly     = flag.Bool("url-only", false, "resolve and save PDF urls without downloading them")
		fromChunks  = flag.String("from-chunks", "", "skip crawling and embed a previously saved chunks file")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()
	if *sourcesPath == "" {
		*sourcesPath = cfg.SourcesFile
	}

	var sources []source.Descriptor
	if *fromChunks == "" {
		var err error
		sources, err = source.Load(*sourcesPath)
		if err != nil {
			log.Fatalf("loading sources: %v", err)
		}
		log.Printf("loaded %d sources from %s", len(sources), *sourcesPath)
	}

	fetcher := extract.NewFetcher(cfg)
	var renderer extract.Renderer
	if needsRendering(sources) {
		chrome := extract.NewChromeRenderer(cfg.UserAgent)
		defer chrome.Close()
		renderer = chrome
	}
	extractor := extract.NewExtractor(cfg, fetcher, renderer)

	var batcher *embed.Batcher
	var coordinator *upload.Coordinator
	if !*testMode && !*urlOnly {
		embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			log.Fatalf("initializing embedder: %v", err)
		}
		batcher = embed.NewBatcher(embedder, cfg.EmbedBatchSize, cfg.EmbedTokenBudget)

		objClient, err := objectclient.NewS3Client(ctx, cfg)
		if err != nil {
			log.Fatalf("initializing object client: %v", err)
		}
		index, err := vectorindex.NewPgIndex(ctx, cfg, objClient)
		if err != nil {
			log.Fatalf("initializing vector index: %v", err)
		}
		defer index.Close()
		coordinator = upload.NewCoordinator(cfg, index, objClient)
	}

	p, err := pipeline.New(cfg, extractor, batcher, coordinator)
	if err != nil {
		log.Fatalf("configuring pipeline: %v", err)
	}

	if *urlOnly {
		if _, err := p.ResolvePDFURLs(ctx, sources); err != nil {
			log.Fatalf("resolving pdf urls: %v", err)
		}
		return
	}

	report, err := p.Run(ctx, sources, pipeline.Options{
		TestMode:   *testMode,
		FromChunks: *fromChunks,
	})
	if err != nil {
		log.Fatalf("crawl failed: %v", err)
	}
	if len(report.FailedIDs) > 0 {
		log.Printf("crawl finished with %d unembedded datapoints", len(report.FailedIDs))
		os.Exit(1)
	}
}

func needsRendering(sources []source.Descriptor) bool {
	for _, src := range sources {
		if src.Rendering != nil && src.Rendering.UseJavaScript {
			return true
		}
	}
	return false
}
