// Package store persists interview transcripts.
//
// The session controller writes periodic snapshots while an interview runs
// and one final snapshot during finalize. Implementations range from the
// in-memory Memory store used in tests and local development to the
// PostgreSQL store in the postgres subpackage, which adds full-text and
// semantic search over persisted conversations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/voxhire/voxhire/internal/transcript"
	"github.com/voxhire/voxhire/pkg/interview"
)

// TranscriptStore persists transcript snapshots for an interview.
//
// Persist replaces messages already stored under the same interview and
// message ID, so re-persisting a grown snapshot is idempotent per message.
// Implementations must be safe for concurrent use.
type TranscriptStore interface {
	Persist(ctx context.Context, id interview.ID, snap transcript.Snapshot, kind interview.SnapshotKind) error
}

// Searcher is the optional query surface of a transcript store. The
// postgres store answers with full-text and vector search; Memory with a
// substring scan over the latest snapshots.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error)
	SearchSimilar(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error)
}

// SearchOpts filters a transcript search.
type SearchOpts struct {
	// InterviewID restricts results to one interview when non-empty.
	InterviewID interview.ID

	// Sender restricts results to one sender when non-empty.
	Sender interview.Sender

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// SearchResult is one matched message.
type SearchResult struct {
	InterviewID interview.ID
	Message     interview.ChatMessage

	// Distance is the cosine distance for semantic search results. Zero for
	// full-text matches.
	Distance float64
}

// Memory is an in-process TranscriptStore. It keeps the latest snapshot per
// interview and kind.
type Memory struct {
	mu    sync.Mutex
	snaps map[interview.ID]map[interview.SnapshotKind]transcript.Snapshot
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{snaps: make(map[interview.ID]map[interview.SnapshotKind]transcript.Snapshot)}
}

// Persist implements TranscriptStore.
func (m *Memory) Persist(_ context.Context, id interview.ID, snap transcript.Snapshot, kind interview.SnapshotKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKind, ok := m.snaps[id]
	if !ok {
		byKind = make(map[interview.SnapshotKind]transcript.Snapshot)
		m.snaps[id] = byKind
	}
	byKind[kind] = snap
	return nil
}

// Snapshot returns the latest persisted snapshot of the given kind, and
// whether one exists.
func (m *Memory) Snapshot(id interview.ID, kind interview.SnapshotKind) (transcript.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id][kind]
	return snap, ok
}

// Search scans persisted messages for ones containing query,
// case-insensitively. Results are ordered chronologically.
func (m *Memory) Search(_ context.Context, query string, opts SearchOpts) ([]SearchResult, error) {
	needle := strings.ToLower(query)

	m.mu.Lock()
	var results []SearchResult
	for id, byKind := range m.snaps {
		if opts.InterviewID != "" && id != opts.InterviewID {
			continue
		}
		for _, msg := range mergedMessages(byKind) {
			if opts.Sender != "" && msg.Sender != opts.Sender {
				continue
			}
			if !strings.Contains(strings.ToLower(msg.Text), needle) {
				continue
			}
			results = append(results, SearchResult{InterviewID: id, Message: msg})
		}
	}
	m.mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Message.Timestamp.Before(results[j].Message.Timestamp)
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

// SearchSimilar answers with the substring scan; Memory keeps no embedding
// index.
func (m *Memory) SearchSimilar(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error) {
	return m.Search(ctx, query, opts)
}

// mergedMessages folds an interview's snapshots together by message ID so a
// message present in both a periodic and the final snapshot appears once.
func mergedMessages(byKind map[interview.SnapshotKind]transcript.Snapshot) []interview.ChatMessage {
	seen := make(map[uuid.UUID]bool)
	var out []interview.ChatMessage
	for _, snap := range byKind {
		for _, msg := range snap.Messages {
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			out = append(out, msg)
		}
	}
	return out
}

var (
	_ TranscriptStore = (*Memory)(nil)
	_ Searcher        = (*Memory)(nil)
)
