package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"medrag/internal/app"
	"medrag/internal/config"
	"medrag/internal/loader"
	"medrag/internal/session"
	"medrag/internal/summarizer"
	"medrag/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, dataDir string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/medrag/config.yaml if not provided)")
	flag.StringVar(&dataDir, "data", "", "Directory of medical documents to ingest before chatting (optional with a persistent index)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	gen, err := app.BuildGenerator(cfg)
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}
	pipeline, idx, err := app.BuildPipeline(cfg, gen)
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	overview := ""
	if dataDir != "" {
		docs, err := loader.FromDir(dataDir)
		if err != nil {
			log.Fatalf("loading corpus failed: %v", err)
		}
		report, err := pipeline.Ingest(ctx, docs)
		if err != nil {
			log.Fatalf("ingest failed: %v", err)
		}
		for _, f := range report.Failures {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", f.DocumentID, f.Err)
		}
		overview = summarizer.New().CorpusOverview(docs, 2)
	} else {
		n, err := idx.Count(ctx)
		if err != nil {
			log.Fatalf("index unavailable: %v", err)
		}
		overview = fmt.Sprintf("%d chunks indexed.", n)
	}

	policy, err := session.ParsePolicy(cfg.Session.ExpiredPolicy)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	manager := session.NewManager(pipeline, session.Config{
		IdleTimeout: time.Duration(cfg.Session.IdleTimeoutSecs) * time.Second,
		Policy:      policy,
	})
	defer manager.Close()

	m := tui.New(manager, session.NewID(), overview)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
