package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/eshaffer321/invoice-matcher/internal/api/dto"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

// StatsHandler handles stats-related HTTP requests.
type StatsHandler struct {
	*Base
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(repo storage.Repository, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		Base: NewBase(repo, logger),
	}
}

// Get handles GET /api/stats - returns aggregate statistics.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetStats()
	if err != nil {
		h.WriteInternalError(w, r, err)
		return
	}

	// Slice sorted by count so the frontend can render it directly
	strategies := make([]dto.StrategyCountResponse, 0, len(stats.MatchesByStrategy))
	for strategy, count := range stats.MatchesByStrategy {
		strategies = append(strategies, dto.StrategyCountResponse{Strategy: strategy, Count: count})
	}
	sort.Slice(strategies, func(i, j int) bool {
		if strategies[i].Count != strategies[j].Count {
			return strategies[i].Count > strategies[j].Count
		}
		return strategies[i].Strategy < strategies[j].Strategy
	})

	var matchRate float64
	if decided := stats.TotalMatched + stats.TotalUnmatched; decided > 0 {
		matchRate = float64(stats.TotalMatched) / float64(decided)
	}

	runsByState := stats.RunsByState
	if runsByState == nil {
		runsByState = map[string]int{}
	}

	h.WriteJSON(w, http.StatusOK, dto.StatsResponse{
		TotalRuns:         stats.TotalRuns,
		RunsByState:       runsByState,
		TotalMatched:      stats.TotalMatched,
		TotalUnmatched:    stats.TotalUnmatched,
		MatchRate:         matchRate,
		MatchesByStrategy: strategies,
	})
}
