// Package policy is the semantic search capability over ingested policy
// documents, backed by an embedded chromem-go collection.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

const (
	defaultCollection = "policies"

	metaCategory = "category"
	metaSource   = "source_file"
	metaPage     = "page"
)

type Config struct {
	// PersistPath keeps the collection on disk. Empty means in-memory only.
	PersistPath string `envconfig:"PERSIST_PATH" split_words:"true" default:"data/index"`
	Compress    bool   `envconfig:"COMPRESS" default:"false"`
	Collection  string `envconfig:"COLLECTION" default:"policies"`
}

type Index struct {
	db  *chromem.DB
	col *chromem.Collection
}

var _ contractx.PolicySearcher = (*Index)(nil)

func New(cfg Config, embed chromem.EmbeddingFunc) (*Index, error) {
	if embed == nil {
		return nil, errors.New("embedding function is required")
	}

	var db *chromem.DB
	if path := strings.TrimSpace(cfg.PersistPath); path != "" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		persistent, err := chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent index at %s: %w", path, err)
		}
		db = persistent
		log.Info().Str("path", path).Msg("opened persistent policy index")
	} else {
		db = chromem.NewDB()
		log.Info().Msg("created in-memory policy index")
	}

	name := strings.TrimSpace(cfg.Collection)
	if name == "" {
		name = defaultCollection
	}
	col, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %q: %w", name, err)
	}

	return &Index{db: db, col: col}, nil
}

func (i *Index) Count() int {
	return i.col.Count()
}

// Add embeds and stores chunks, returning how many were indexed. Chunks
// without text are skipped.
func (i *Index) Add(ctx context.Context, chunks []contractx.PolicyChunk) (int, error) {
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:      uuid.NewString(),
			Content: c.Text,
			Metadata: map[string]string{
				metaCategory: string(c.Category),
				metaSource:   c.Source,
				metaPage:     strconv.Itoa(c.Page),
			},
		})
	}
	if len(docs) == 0 {
		return 0, nil
	}

	if err := i.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("add documents: %w", err)
	}
	return len(docs), nil
}

// Search returns up to k chunks ranked by similarity. An empty category
// searches every category.
func (i *Index) Search(ctx context.Context, query string, category contractx.Category, k int) ([]contractx.PolicyChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", contractx.ErrValidation)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be > 0", contractx.ErrValidation)
	}

	n := min(k, i.col.Count())
	if n == 0 {
		return nil, nil
	}

	var where map[string]string
	if category != "" {
		where = map[string]string{metaCategory: string(category)}
	}

	results, err := i.col.Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query policy index: %w", err)
	}

	out := make([]contractx.PolicyChunk, 0, len(results))
	for _, r := range results {
		page, _ := strconv.Atoi(r.Metadata[metaPage])
		out = append(out, contractx.PolicyChunk{
			Text:     r.Content,
			Category: contractx.Category(r.Metadata[metaCategory]),
			Source:   r.Metadata[metaSource],
			Page:     page,
		})
	}
	return out, nil
}
