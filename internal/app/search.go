package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/voxhire/voxhire/internal/store"
	"github.com/voxhire/voxhire/pkg/interview"
)

// searchResult is the wire form of one transcript search hit.
type searchResult struct {
	InterviewID string    `json:"interview_id"`
	MessageID   string    `json:"message_id"`
	Sender      string    `json:"sender"`
	Channel     string    `json:"channel"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
	Distance    float64   `json:"distance,omitempty"`
}

// searchResponse wraps the hits of one search request.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

// searchHandler serves transcript search on the observability mux. The q
// parameter is required; interview_id, sender, and limit narrow the result
// set, and semantic=true routes the query through the vector index.
func searchHandler(s store.Searcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		query := params.Get("q")
		if query == "" {
			http.Error(w, "missing q parameter", http.StatusBadRequest)
			return
		}

		opts := store.SearchOpts{
			InterviewID: interview.ID(params.Get("interview_id")),
			Sender:      interview.Sender(params.Get("sender")),
		}
		if raw := params.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				http.Error(w, "invalid limit parameter", http.StatusBadRequest)
				return
			}
			opts.Limit = limit
		}

		search := s.Search
		if params.Get("semantic") == "true" {
			search = s.SearchSimilar
		}
		hits, err := search(r.Context(), query, opts)
		if err != nil {
			slog.Error("transcript search failed", "err", err)
			http.Error(w, "search failed", http.StatusInternalServerError)
			return
		}

		resp := searchResponse{Results: make([]searchResult, 0, len(hits))}
		for _, h := range hits {
			resp.Results = append(resp.Results, searchResult{
				InterviewID: string(h.InterviewID),
				MessageID:   h.Message.ID.String(),
				Sender:      string(h.Message.Sender),
				Channel:     string(h.Message.Channel),
				Text:        h.Message.Text,
				SentAt:      h.Message.Timestamp,
				Distance:    h.Distance,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Warn("encode search response", "err", err)
		}
	})
}
