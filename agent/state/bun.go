package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

type PostgresConfig struct {
	DSN         string        `envconfig:"DSN" required:"true"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
}

type conversationRow struct {
	bun.BaseModel `bun:"table:conversations"`

	ThreadID  string    `bun:"thread_id,pk"`
	NextRoute string    `bun:"next_route,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:conversation_messages"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ThreadID  string    `bun:"thread_id,notnull"`
	Seq       int       `bun:"seq,notnull"`
	Role      string    `bun:"role,notnull"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// BunStore keeps conversations in SQL: one row per thread and one row per
// persisted message, ordered by seq.
type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ Store = (*BunStore)(nil)

// OpenPostgres connects to Postgres with pgdriver and prepares the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*BunStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewBunStore(ctx, db)
}

// NewBunStore wraps an existing bun database and creates missing tables.
func NewBunStore(ctx context.Context, db *bun.DB) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	s := &BunStore{db: db, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *BunStore) initSchema(ctx context.Context) error {
	for _, model := range []any{(*conversationRow)(nil), (*messageRow)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	_, err := s.db.NewCreateIndex().
		Model((*messageRow)(nil)).
		Index("idx_conversation_messages_thread_seq").
		Column("thread_id", "seq").
		Unique().
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) Get(ctx context.Context, threadID string) (*ConversationState, error) {
	id, err := validateThread(threadID)
	if err != nil {
		return nil, err
	}

	var conv conversationRow
	err = s.db.NewSelect().Model(&conv).Where("thread_id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return NewConversationState(id, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}

	var rows []messageRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("thread_id = ?", id).
		OrderExpr("seq ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	st := &ConversationState{
		ThreadID:  id,
		Messages:  make([]*schema.Message, 0, len(rows)),
		NextRoute: contractx.RouteLabel(conv.NextRoute),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	for _, r := range rows {
		st.Messages = append(st.Messages, record{Role: r.Role, Content: r.Content}.message())
	}
	return st, nil
}

func (s *BunStore) Append(ctx context.Context, threadID string, route contractx.RouteLabel, msgs ...*schema.Message) error {
	id, err := validateThread(threadID)
	if err != nil {
		return err
	}
	records, err := toRecords(msgs)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		conv := &conversationRow{
			ThreadID:  id,
			NextRoute: string(route),
			CreatedAt: now,
			UpdatedAt: now,
		}
		upsert := tx.NewInsert().Model(conv).
			On("CONFLICT (thread_id) DO UPDATE").
			Set("updated_at = EXCLUDED.updated_at")
		if route != "" {
			upsert = upsert.Set("next_route = EXCLUDED.next_route")
		}
		if _, err := upsert.Exec(ctx); err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}

		if len(records) == 0 {
			return nil
		}

		var lastSeq int
		if err := tx.NewSelect().
			Model((*messageRow)(nil)).
			ColumnExpr("COALESCE(MAX(seq), 0)").
			Where("thread_id = ?", id).
			Scan(ctx, &lastSeq); err != nil {
			return fmt.Errorf("select last seq: %w", err)
		}

		rows := make([]messageRow, 0, len(records))
		for i, rec := range records {
			rows = append(rows, messageRow{
				ThreadID:  id,
				Seq:       lastSeq + i + 1,
				Role:      rec.Role,
				Content:   rec.Content,
				CreatedAt: now,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
		return nil
	})
}

func (s *BunStore) Delete(ctx context.Context, threadID string) error {
	id, err := validateThread(threadID)
	if err != nil {
		return err
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*messageRow)(nil)).Where("thread_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.NewDelete().Model((*conversationRow)(nil)).Where("thread_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return nil
	})
}
