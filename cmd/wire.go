package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/analyze"
	"github.com/sells-group/icp-analyzer/internal/export"
	"github.com/sells-group/icp-analyzer/internal/nlp"
	"github.com/sells-group/icp-analyzer/internal/pipeline"
	"github.com/sells-group/icp-analyzer/internal/report"
	"github.com/sells-group/icp-analyzer/internal/scrape"
	"github.com/sells-group/icp-analyzer/internal/store"
	"github.com/sells-group/icp-analyzer/internal/webhook"
	anthropicpkg "github.com/sells-group/icp-analyzer/pkg/anthropic"
	"github.com/sells-group/icp-analyzer/pkg/hubspot"
	"github.com/sells-group/icp-analyzer/pkg/jina"
	sfpkg "github.com/sells-group/icp-analyzer/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "icp.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildScraper assembles the fetch chain: free local HTTP first, Jina
// reader as fallback when a key is configured.
func buildScraper() scrape.Scraper {
	local := scrape.NewLocalScraper(
		scrape.WithRateLimit(cfg.Scrape.RequestsPerSec),
		scrape.WithUserAgent(cfg.Scrape.UserAgent),
		scrape.WithMinFragmentLen(cfg.Scrape.MinFragmentLen),
	)

	if cfg.Jina.Key == "" {
		return local
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	return scrape.NewChain(local, scrape.NewJinaScraper(jinaClient, cfg.Scrape.MinFragmentLen))
}

func buildOrchestrator(st store.Store) (*pipeline.Orchestrator, error) {
	lex, err := nlp.DefaultLexicon()
	if err != nil {
		return nil, err
	}
	unit := analyze.NewUnit(buildScraper(), nlp.NewExtractor(lex, cfg.Extract.MinTokens))

	opts := []pipeline.Option{
		pipeline.WithMaxInFlight(cfg.Pipeline.MaxInFlight),
		pipeline.WithNotifier(webhook.NewDispatcher(st, cfg.Webhook.Secret,
			webhook.WithMaxAttempts(cfg.Webhook.MaxAttempts),
			webhook.WithHTTPClient(httpClientWithTimeout(cfg.Webhook.TimeoutSecs)))),
	}

	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		opts = append(opts, pipeline.WithAdvancedAnalyzer(
			nlp.NewAdvancedAnalyzer(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)))
	}

	return pipeline.New(st, unit, analyze.NewAggregator(st), opts...), nil
}

func buildReportService(ctx context.Context) (*report.Service, error) {
	if cfg.Report.Minio.Endpoint != "" {
		artifacts, err := report.NewMinioStore(ctx, report.MinioConfig{
			Endpoint:  cfg.Report.Minio.Endpoint,
			Region:    cfg.Report.Minio.Region,
			Bucket:    cfg.Report.Minio.Bucket,
			AccessKey: cfg.Report.Minio.AccessKey,
			SecretKey: cfg.Report.Minio.SecretKey,
			UseSSL:    cfg.Report.Minio.UseSSL,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init minio artifact store")
		}
		return report.NewService(artifacts), nil
	}

	artifacts, err := report.NewLocalStore(cfg.Report.ArtifactDir)
	if err != nil {
		return nil, eris.Wrap(err, "init local artifact store")
	}
	return report.NewService(artifacts), nil
}

// buildExportRegistry wires whichever CRM platforms are configured.
// An empty registry is valid; export requests then fail with the
// platform list.
func buildExportRegistry() *export.Registry {
	var exporters []export.Exporter

	if cfg.Salesforce.ClientID != "" {
		sfClient, err := sfpkg.Connect(
			cfg.Salesforce.LoginURL,
			cfg.Salesforce.ClientID,
			cfg.Salesforce.Username,
			cfg.Salesforce.KeyPath,
			sfpkg.WithRateLimit(cfg.Salesforce.RateRPS),
		)
		if err != nil {
			zap.L().Warn("salesforce init failed, exporter disabled", zap.Error(err))
		} else {
			exporters = append(exporters, export.NewSalesforceExporter(sfClient))
		}
	}

	if cfg.HubSpot.Token != "" {
		hsClient := hubspot.NewClient(cfg.HubSpot.Token,
			hubspot.WithBaseURL(cfg.HubSpot.BaseURL),
			hubspot.WithRateLimit(cfg.HubSpot.RateRPS))
		exporters = append(exporters, export.NewHubSpotExporter(hsClient))
	}

	return export.NewRegistry(exporters...)
}

func httpClientWithTimeout(secs int) *http.Client {
	if secs <= 0 {
		secs = 10
	}
	return &http.Client{Timeout: time.Duration(secs) * time.Second}
}
