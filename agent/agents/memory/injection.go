package memoryagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/reservation-concierge/agent/agents/base"
	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
)

const defaultRecentUserTurns = 3

// InjectionAgent retrieves the owner's relevant memories and stages them as
// MemoryContext for the reservation agent.
type InjectionAgent struct {
	base.Base
	Searcher        contractx.MemorySearcher
	TopK            int
	RecentUserTurns int
}

var _ contractx.Agent = (*InjectionAgent)(nil)

func (a *InjectionAgent) Invoke(ctx context.Context, st *statex.SharedState) error {
	if st == nil {
		return statex.ErrNilState
	}
	st.MemoryContext = ""
	if a.Searcher == nil {
		return a.Record(st, a.Succeeded("Long-term memory is not configured."))
	}

	turns := a.RecentUserTurns
	if turns <= 0 {
		turns = defaultRecentUserTurns
	}
	query := strings.Join(st.RecentUserMessages(turns), "\n")
	if query == "" {
		query = st.LatestUtterance()
	}

	hits, err := a.Searcher.Search(ctx, query, a.TopK, st.OwnerID)
	if err != nil {
		log.Error().Err(err).Str("agent", string(a.Type)).Str("owner_id", st.OwnerID).Msg("memory search failed")
		return a.Record(st, a.Degraded("Long-term memory is unavailable for this turn.", "", err.Error()))
	}
	if len(hits) == 0 {
		return a.Record(st, a.Succeeded("No relevant memories found."))
	}

	st.MemoryContext = FormatContext(hits)
	return a.Record(st, a.Succeeded(fmt.Sprintf("Retrieved %d relevant memories:\n%s", len(hits), st.MemoryContext)))
}

// FormatContext renders hits as "- fact" lines in the given order.
func FormatContext(hits []contractx.MemoryHit) string {
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		if t := strings.TrimSpace(h.Text); t != "" {
			lines = append(lines, "- "+t)
		}
	}
	return strings.Join(lines, "\n")
}
