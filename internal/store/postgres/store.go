package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxhire/voxhire/internal/store"
	"github.com/voxhire/voxhire/internal/transcript"
	"github.com/voxhire/voxhire/pkg/interview"
	"github.com/voxhire/voxhire/pkg/provider/embeddings"
)

// DefaultEmbeddingDimensions is the vector column width used when no
// embedder is configured. It matches OpenAI text-embedding-3-small so a
// later-enabled embedder needs no schema change.
const DefaultEmbeddingDimensions = 1536

var _ store.TranscriptStore = (*Store)(nil)

// Store is the PostgreSQL-backed transcript store. All methods are safe for
// concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithEmbedder enables semantic indexing: every persisted message gets an
// embedding vector and SearchSimilar becomes available. Without one the
// store degrades to full-text search only.
func WithEmbedder(e embeddings.Provider) Option {
	return func(s *Store) { s.embedder = e }
}

// New connects to the PostgreSQL database at dsn, registers pgvector types
// on every connection, and runs [Migrate].
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		o(s)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	dims := DefaultEmbeddingDimensions
	if s.embedder != nil {
		if d := s.embedder.Dimensions(); d > 0 {
			dims = d
		}
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s.pool = pool
	return s, nil
}

// Ping verifies the database connection is alive. Suitable as a readiness
// check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Persist implements [store.TranscriptStore]. It upserts the interview row
// and every message in the snapshot. When an embedder is configured the
// message texts are embedded in one batch; if embedding fails the messages
// are still persisted without vectors, so persistence never depends on the
// embeddings backend being up.
func (s *Store) Persist(ctx context.Context, id interview.ID, snap transcript.Snapshot, kind interview.SnapshotKind) error {
	const upsertInterview = `
		INSERT INTO interviews (id, stage, kind, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
		    stage      = EXCLUDED.stage,
		    kind       = EXCLUDED.kind,
		    updated_at = EXCLUDED.updated_at`

	const upsertMessage = `
		INSERT INTO interview_messages
		    (interview_id, message_id, sender, channel, text, embedding, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (interview_id, message_id) DO UPDATE SET
		    sender    = EXCLUDED.sender,
		    channel   = EXCLUDED.channel,
		    text      = EXCLUDED.text,
		    embedding = COALESCE(EXCLUDED.embedding, interview_messages.embedding),
		    sent_at   = EXCLUDED.sent_at`

	vectors := s.embed(ctx, id, snap.Messages)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertInterview, string(id), string(snap.Stage), string(kind), snap.TakenAt); err != nil {
		return fmt.Errorf("postgres store: upsert interview: %w", err)
	}

	for i, msg := range snap.Messages {
		var vec any
		if vectors != nil && vectors[i] != nil {
			vec = pgvector.NewVector(vectors[i])
		}
		if _, err := tx.Exec(ctx, upsertMessage,
			string(id),
			msg.ID,
			string(msg.Sender),
			string(msg.Channel),
			msg.Text,
			vec,
			msg.Timestamp,
		); err != nil {
			return fmt.Errorf("postgres store: upsert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// embed computes one embedding per message, or nil when no embedder is
// configured or the batch fails.
func (s *Store) embed(ctx context.Context, id interview.ID, msgs []interview.ChatMessage) [][]float32 {
	if s.embedder == nil || len(msgs) == 0 {
		return nil
	}
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("postgres store: embedding failed, persisting without vectors",
			"interview_id", id, "error", err)
		return nil
	}
	return vectors
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
