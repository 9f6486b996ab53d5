package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	"github.com/tanpawarit/PolicyPilot/pkg/metrics"
)

var (
	ErrQueueFull = errors.New("ingestion queue is full")
	ErrClosed    = errors.New("ingestor is closed")
)

type Config struct {
	UploadDir    string `envconfig:"UPLOAD_DIR" split_words:"true" default:"data/uploads"`
	Workers      int    `envconfig:"WORKERS" default:"2"`
	QueueSize    int    `envconfig:"QUEUE_SIZE" split_words:"true" default:"32"`
	ChunkSize    int    `envconfig:"CHUNK_SIZE" split_words:"true" default:"1000"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" split_words:"true" default:"200"`
}

// Indexer stores embedded chunks.
type Indexer interface {
	Add(ctx context.Context, chunks []contractx.PolicyChunk) (int, error)
}

// Job is one queued file. Source is the client's original file name and is
// what search results cite.
type Job struct {
	ID       string
	Path     string
	Category contractx.Category
	Source   string
}

type Ingestor struct {
	cfg      Config
	index    Indexer
	splitter *Splitter
	extract  func(ctx context.Context, path string) ([]Page, error)

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
}

func New(cfg Config, index Indexer) (*Ingestor, error) {
	if index == nil {
		return nil, errors.New("indexer is required")
	}
	if strings.TrimSpace(cfg.UploadDir) == "" {
		return nil, errors.New("upload dir is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}

	return &Ingestor{
		cfg:      cfg,
		index:    index,
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		extract:  extractPages,
		jobs:     make(chan Job, cfg.QueueSize),
	}, nil
}

// Start launches the worker pool. Workers stop when ctx is cancelled or
// Close is called.
func (i *Ingestor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	i.mu.Lock()
	i.cancel = cancel
	i.mu.Unlock()

	for w := 0; w < i.cfg.Workers; w++ {
		i.wg.Add(1)
		go i.work(ctx, w)
	}
	log.Info().Int("workers", i.cfg.Workers).Str("upload_dir", i.cfg.UploadDir).Msg("ingestion workers started")
}

// Close stops accepting jobs, lets queued jobs drain and waits for workers.
func (i *Ingestor) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	close(i.jobs)
	i.mu.Unlock()

	i.wg.Wait()

	i.mu.RLock()
	cancel := i.cancel
	i.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Submit validates and stores an upload, then queues it for background
// ingestion. Rejected uploads leave nothing on disk and schedule nothing.
func (i *Ingestor) Submit(ctx context.Context, filename, category string, content []byte) (Job, error) {
	cat, err := Validate(filename, category, content)
	if err != nil {
		return Job{}, err
	}

	source := safeBase(filename)
	id := uuid.NewString()
	dir := filepath.Join(i.cfg.UploadDir, string(cat))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Job{}, fmt.Errorf("create upload dir: %w", err)
	}
	dest := filepath.Join(dir, strings.ReplaceAll(id, "-", "")+"_"+source)
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return Job{}, fmt.Errorf("write upload: %w", err)
	}

	job := Job{ID: id, Path: dest, Category: cat, Source: source}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		_ = os.Remove(dest)
		return Job{}, ErrClosed
	}
	select {
	case i.jobs <- job:
	case <-ctx.Done():
		_ = os.Remove(dest)
		return Job{}, ctx.Err()
	default:
		_ = os.Remove(dest)
		return Job{}, ErrQueueFull
	}

	log.Ctx(ctx).Info().
		Str("job_id", id).
		Str("category", string(cat)).
		Str("source", source).
		Msg("upload queued for ingestion")
	return job, nil
}

func (i *Ingestor) work(ctx context.Context, worker int) {
	defer i.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-i.jobs:
			if !ok {
				return
			}
			logger := log.With().
				Int("worker", worker).
				Str("job_id", job.ID).
				Str("source", job.Source).
				Logger()

			n, err := i.IngestFile(ctx, job.Path, job.Category, job.Source)
			if err != nil {
				metrics.IngestTotal.WithLabelValues(string(job.Category), "error").Inc()
				logger.Error().Err(err).Msg("ingestion failed")
				continue
			}
			metrics.IngestTotal.WithLabelValues(string(job.Category), "ok").Inc()
			logger.Info().Int("chunks", n).Msg("ingestion finished")
		}
	}
}

// IngestFile extracts, splits and indexes one PDF, returning the chunk count.
func (i *Ingestor) IngestFile(ctx context.Context, path string, category contractx.Category, source string) (int, error) {
	if source == "" {
		source = filepath.Base(path)
	}

	pages, err := i.extract(ctx, path)
	if err != nil {
		return 0, err
	}

	var chunks []contractx.PolicyChunk
	for _, p := range pages {
		for _, text := range i.splitter.Split(p.Text) {
			chunks = append(chunks, contractx.PolicyChunk{
				Text:     text,
				Category: category,
				Source:   source,
				Page:     p.Number,
			})
		}
	}

	n, err := i.index.Add(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("index %s: %w", source, err)
	}
	metrics.IngestedChunksTotal.Add(float64(n))
	return n, nil
}

// IngestAll walks <upload dir>/<category>/*.pdf synchronously. Files that
// fail are logged and skipped.
func (i *Ingestor) IngestAll(ctx context.Context) (int, error) {
	total := 0
	for _, cat := range contractx.Categories() {
		dir := filepath.Join(i.cfg.UploadDir, string(cat))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return total, fmt.Errorf("read %s: %w", dir, err)
		}

		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				continue
			}
			if err := ctx.Err(); err != nil {
				return total, err
			}

			path := filepath.Join(dir, e.Name())
			n, err := i.IngestFile(ctx, path, cat, e.Name())
			if err != nil {
				metrics.IngestTotal.WithLabelValues(string(cat), "error").Inc()
				log.Ctx(ctx).Warn().Err(err).Str("file", e.Name()).Msg("skipping file")
				continue
			}
			metrics.IngestTotal.WithLabelValues(string(cat), "ok").Inc()
			log.Ctx(ctx).Info().Str("file", e.Name()).Int("chunks", n).Msg("ingested")
			total += n
		}
	}
	return total, nil
}
