package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/internal/job"
	"github.com/scribehq/scribe/internal/logging"
	"github.com/scribehq/scribe/internal/media"
	"github.com/scribehq/scribe/internal/procs"
	"github.com/scribehq/scribe/internal/provider"
	"github.com/scribehq/scribe/internal/server"
	"github.com/scribehq/scribe/internal/store"
	"github.com/scribehq/scribe/internal/summarizer"
	"github.com/scribehq/scribe/internal/version"
)

func main() {
	port := flag.Int("port", 0, "HTTP listen port (default: 8080)")
	configPath := flag.String("config", "", "path to config file")
	output := flag.String("output", "", "output directory for finished transcripts")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scribe-server %s\n", version.Version)
		return
	}

	// Secrets may come from a local .env during development.
	_ = godotenv.Load()

	log := logging.New()

	cfg := config.LoadOrDefault(*configPath)
	if *port > 0 {
		cfg.Server.Port = *port
	}
	secrets := config.LoadSecrets()

	outputDir := *output
	if outputDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.WithError(err).Fatal("cannot resolve home directory")
		}
		outputDir = filepath.Join(home, "scribe")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.WithError(err).Fatal("cannot create output directory")
	}

	procRegistry := procs.NewRegistry()
	runner := &media.ExecRunner{
		Registry: procRegistry,
		Timeout:  cfg.Media.ProcessTimeout,
	}
	prober := media.NewProber(cfg.Media.FFprobePath, runner, logging.ForComponent(log, "prober"))
	segmenter := media.NewSegmenter(cfg.Media.FFmpegPath, runner, cfg.Server.UploadDir, logging.ForComponent(log, "segmenter"))

	var batch, inline provider.Transcriber
	if secrets.BatchAPIKey != "" {
		batch = provider.NewBatch(cfg.Providers.Batch.BaseURL, secrets.BatchAPIKey, logging.ForComponent(log, "batch"))
	}
	if secrets.InlineAPIKey != "" {
		inline = provider.NewInline(cfg.Providers.Inline.BaseURL, secrets.InlineAPIKey,
			cfg.Providers.Inline.MaxInlineBytes, logging.ForComponent(log, "inline"))
	}
	if batch == nil && inline == nil {
		log.Fatal("no transcription provider configured: set DEEPGRAM_API_KEY or GEMINI_API_KEY")
	}
	providers := provider.NewRegistry(batch, inline)

	summ, err := summarizer.New(cfg.Summarizer, secrets)
	if err != nil {
		log.WithError(err).Warn("summarization unavailable")
	}

	jobs := job.NewRegistry(cfg.Server.MaxConcurrent, procRegistry, logging.ForComponent(log, "jobs"))
	orch := job.NewOrchestrator(jobs, prober, segmenter, providers, summ,
		store.NewFileStore(outputDir), cfg.Media.SegmentBudgetMB, logging.ForComponent(log, "orchestrator"))
	jobs.Start(orch.Run)

	srv := server.NewServer(cfg, jobs, logging.ForComponent(log, "http"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Stop(ctx)
		jobs.Stop()
	}()

	log.WithField("output_dir", outputDir).Info("finished transcripts directory")

	if err := srv.Start(); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
