package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"medrag/internal/app"
	"medrag/internal/config"
	"medrag/internal/domain"
	"medrag/internal/loader"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, dataDir, category string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/medrag/config.yaml if not provided)")
	flag.StringVar(&dataDir, "data", "", "Directory of medical documents to ingest")
	flag.StringVar(&category, "category", "", "Category to assign to files given as arguments")
	flag.Parse()
	files := flag.Args()
	if dataDir == "" && len(files) == 0 {
		fmt.Println("Usage: medrag-ingest [--config=config.yaml] --data=corpus/ | file1.md [file2.md ...]")
		os.Exit(1)
	}

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

	pipeline, idx, err := app.BuildPipeline(cfg, nil)
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}
	defer idx.Close()

	var docs []domain.Document
	if dataDir != "" {
		docs, err = loader.FromDir(dataDir)
	} else {
		docs, err = loader.FromFiles(files)
	}
	if err != nil {
		log.Fatalf("loading corpus failed: %v", err)
	}
	if category != "" {
		for i := range docs {
			docs[i].Category = category
		}
	}

	ctx := context.Background()
	report, err := pipeline.Ingest(ctx, docs)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	fmt.Printf("ingested %d documents (%d chunks)\n", report.Documents, report.Chunks)
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "failed %s: %v\n", f.DocumentID, f.Err)
	}
	total, err := idx.Count(ctx)
	if err != nil {
		log.Fatalf("index count failed: %v", err)
	}
	fmt.Printf("index now holds %d chunks\n", total)
	if len(report.Failures) > 0 {
		os.Exit(1)
	}
}
