// Package postgres provides the PostgreSQL-backed transcript store.
//
// Snapshots are persisted into two tables: one row per interview and one row
// per aggregated message, upserted by (interview_id, message_id) so repeated
// snapshots of a growing transcript stay idempotent. A GIN index supports
// full-text search over message text; when an embeddings provider is
// configured, each message also carries a pgvector embedding under an HNSW
// index for semantic search. The pgvector extension must be available in the
// target database; [Migrate] installs it via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn, postgres.WithEmbedder(embedder))
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.Persist(ctx, id, snap, interview.SnapshotFinal)
//	results, _ := st.Search(ctx, "kubernetes migration", store.SearchOpts{})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlInterviews = `
CREATE TABLE IF NOT EXISTS interviews (
    id          TEXT         PRIMARY KEY,
    stage       TEXT         NOT NULL DEFAULT '',
    kind        TEXT         NOT NULL DEFAULT 'snapshot',
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlMessages returns the messages DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlMessages(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS interview_messages (
    interview_id  TEXT         NOT NULL,
    message_id    UUID         NOT NULL,
    sender        TEXT         NOT NULL,
    channel       TEXT         NOT NULL,
    text          TEXT         NOT NULL,
    embedding     vector(%d),
    sent_at       TIMESTAMPTZ  NOT NULL,
    PRIMARY KEY (interview_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_interview_messages_interview_id
    ON interview_messages (interview_id);

CREATE INDEX IF NOT EXISTS idx_interview_messages_sent_at
    ON interview_messages (sent_at);

CREATE INDEX IF NOT EXISTS idx_interview_messages_fts
    ON interview_messages USING GIN (to_tsvector('english', text));

CREATE INDEX IF NOT EXISTS idx_interview_messages_embedding
    ON interview_messages USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlInterviews,
		ddlMessages(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
