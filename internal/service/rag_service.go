// Package service orchestrates the RAG pipeline: concurrent document
// ingestion into the vector index and the per-query answer path.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"medrag/internal/assembler"
	"medrag/internal/domain"
	"medrag/internal/retriever"
)

// Options tune the query path and ingestion fan-out.
type Options struct {
	TopK           int
	MinScore       float64
	IngestWorkers  int
	CategoryFilter string
}

// Pipeline wires the pipeline stages together. It implements
// session.Answerer for the query path.
type Pipeline struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	index     domain.VectorIndex
	retriever *retriever.Retriever
	assembler *assembler.Assembler
	generator domain.Generator
	opts      Options
}

// New assembles the pipeline from its stages.
func New(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, asm *assembler.Assembler, gen domain.Generator, opts Options) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.IngestWorkers <= 0 {
		opts.IngestWorkers = 4
	}
	return &Pipeline{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		retriever: retriever.New(embedder, index),
		assembler: asm,
		generator: gen,
		opts:      opts,
	}
}

// DocumentFailure reports one document that could not be ingested.
type DocumentFailure struct {
	DocumentID string
	Err        error
}

// IngestReport summarizes an ingestion run. Failures are isolated per
// document; the run itself always completes.
type IngestReport struct {
	Documents int
	Chunks    int
	Failures  []DocumentFailure
}

// Ingest chunks, embeds and indexes the documents with bounded
// parallelism. A failing document is recorded in the report and skipped;
// it never aborts the other documents.
func (p *Pipeline) Ingest(ctx context.Context, docs []domain.Document) (IngestReport, error) {
	var (
		mu     sync.Mutex
		report IngestReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.IngestWorkers)
	for _, doc := range docs {
		g.Go(func() error {
			n, err := p.ingestOne(gctx, doc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, DocumentFailure{DocumentID: doc.ID, Err: err})
				return nil
			}
			report.Documents++
			report.Chunks += n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].DocumentID < report.Failures[j].DocumentID
	})
	return report, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, doc domain.Document) (int, error) {
	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return 0, fmt.Errorf("chunking: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding: %w", err)
	}
	if err := p.index.Upsert(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("indexing: %w", err)
	}
	return len(chunks), nil
}

// Answer runs the query path: retrieve, assemble, generate. The chunk
// IDs that entered the context are returned alongside the answer for the
// session record. An empty retrieval yields the generator's fallback
// answer, never an error.
func (p *Pipeline) Answer(ctx context.Context, query string, history []domain.Turn) (domain.Answer, []string, error) {
	results, err := p.retriever.Retrieve(ctx, query, p.opts.TopK, p.opts.MinScore, domain.Filter{Category: p.opts.CategoryFilter})
	if err != nil {
		return domain.Answer{}, nil, err
	}
	block := p.assembler.Assemble(query, results, history)
	answer, err := p.generator.Generate(ctx, query, block, history)
	if err != nil {
		return domain.Answer{}, nil, err
	}
	chunkIDs := make([]string, 0, len(block.Chunks))
	for _, sc := range block.Chunks {
		chunkIDs = append(chunkIDs, sc.Chunk.ID)
	}
	return answer, chunkIDs, nil
}
