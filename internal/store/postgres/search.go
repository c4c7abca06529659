package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/voxhire/voxhire/internal/store"
	"github.com/voxhire/voxhire/pkg/interview"
)

var _ store.Searcher = (*Store)(nil)

// Search performs a PostgreSQL full-text search over persisted message text
// and applies optional filters from opts. The query is passed to
// plainto_tsquery so no special operator syntax is required. Results are
// ordered chronologically.
func (s *Store) Search(ctx context.Context, query string, opts store.SearchOpts) ([]store.SearchResult, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.InterviewID != "" {
		conditions = append(conditions, "interview_id = "+next(string(opts.InterviewID)))
	}
	if opts.Sender != "" {
		conditions = append(conditions, "sender = "+next(string(opts.Sender)))
	}

	q := "SELECT interview_id, message_id, sender, channel, text, sent_at\n" +
		"FROM   interview_messages\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY sent_at"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search: %w", err)
	}
	return collectResults(rows, false)
}

// SearchSimilar finds the messages semantically closest to query, ordered
// by ascending cosine distance. It requires an embedder; without one, or
// when embedding the query fails, it falls back to full-text Search so
// callers always get an answer.
func (s *Store) SearchSimilar(ctx context.Context, query string, opts store.SearchOpts) ([]store.SearchResult, error) {
	if s.embedder == nil {
		return s.Search(ctx, query, opts)
	}
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return s.Search(ctx, query, opts)
	}

	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"embedding IS NOT NULL"}
	if opts.InterviewID != "" {
		conditions = append(conditions, "interview_id = "+next(string(opts.InterviewID)))
	}
	if opts.Sender != "" {
		conditions = append(conditions, "sender = "+next(string(opts.Sender)))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT interview_id, message_id, sender, channel, text, sent_at,
		       embedding <=> $1 AS distance
		FROM   interview_messages
		WHERE  %s
		ORDER  BY distance
		LIMIT  %s`, strings.Join(conditions, "\n  AND  "), limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search similar: %w", err)
	}
	return collectResults(rows, true)
}

// collectResults scans pgx rows into SearchResult values.
func collectResults(rows pgx.Rows, withDistance bool) ([]store.SearchResult, error) {
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.SearchResult, error) {
		var (
			r               store.SearchResult
			id              string
			sender, channel string
		)
		dest := []any{&id, &r.Message.ID, &sender, &channel, &r.Message.Text, &r.Message.Timestamp}
		if withDistance {
			dest = append(dest, &r.Distance)
		}
		if err := row.Scan(dest...); err != nil {
			return store.SearchResult{}, err
		}
		r.InterviewID = interview.ID(id)
		r.Message.Sender = interview.Sender(sender)
		r.Message.Channel = interview.Channel(channel)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	return results, nil
}
