// Package app wires the query API's dependencies together.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/asaifulas/ragcrawler/internal/config"
	"github.com/asaifulas/ragcrawler/internal/core/llm"
	objectclient "github.com/asaifulas/ragcrawler/internal/core/object-client"
	"github.com/asaifulas/ragcrawler/internal/core/vectorindex"
	"github.com/asaifulas/ragcrawler/internal/query"
)

type App struct {
	Index        vectorindex.Index
	ObjectClient objectclient.ObjectClient
	QueryService *query.Service
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	index, err := vectorindex.NewPgIndex(appCtx, cfg, objClient)
	if err != nil {
		return nil, err
	}
	log.Println("Vector index initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	queryService := query.NewService(embedder, llmProvider, index)
	server := NewServer(cfg, queryService)

	return &App{
		Index:        index,
		ObjectClient: objClient,
		QueryService: queryService,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.Index != nil {
		_ = a.Index.Close()
	}
}
