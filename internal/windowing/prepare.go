package windowing

import (
	"errors"
	"fmt"

	"github.com/petasbytes/memchat/memory"
)

// ErrNewestOverBudget means the newest group alone does not fit, so nothing
// can be sent.
var ErrNewestOverBudget = errors.New("newest message exceeds the context budget")

// Stats summarizes the result of window preparation.
//
// Fields:
// - Total: estimated tokens for included groups only.
// - Budget: the input token budget used.
// - IncludedGroups: number of groups included.
// - SkippedGroups: total groups minus IncludedGroups.
// - OverBudgetNewest: true when the newest single group alone exceeds Budget.
type Stats struct {
	Total            int
	Budget           int
	IncludedGroups   int
	SkippedGroups    int
	OverBudgetNewest bool
}

// PrepareSendWindow returns a subslice of msgs (oldest→newest) that fits within
// budget using the TokenCounter, without splitting groups.
//
// Rules:
// - Include whole groups scanning newest→oldest while total ≤ budget.
// - If the newest group alone exceeds budget, return an empty window and set OverBudgetNewest.
// - If budget ≤ 0, return an empty window (OverBudgetNewest set when any groups exist).
func PrepareSendWindow(msgs memory.ModelContext, budget int, c TokenCounter) (memory.ModelContext, Stats) {
	if len(msgs) == 0 {
		return nil, Stats{Budget: budget}
	}

	groups := GroupMessages(msgs)

	if budget <= 0 {
		return nil, Stats{
			Budget:           budget,
			SkippedGroups:    len(groups),
			OverBudgetNewest: true,
		}
	}

	total := 0
	included := 0
	startIdx := len(groups)

	for gi := len(groups) - 1; gi >= 0; gi-- {
		cost := c.CountGroup(groups[gi], msgs)
		if included == 0 && cost > budget {
			return nil, Stats{
				Budget:           budget,
				SkippedGroups:    len(groups),
				OverBudgetNewest: true,
			}
		}
		if total+cost > budget {
			break
		}
		total += cost
		included++
		startIdx = gi
	}

	return msgs[groups[startIdx].Start:], Stats{
		Total:          total,
		Budget:         budget,
		IncludedGroups: included,
		SkippedGroups:  len(groups) - included,
	}
}

// Fit is PrepareSendWindow for callers that treat a zero budget as
// unlimited and an oversized newest group as an error.
func Fit(msgs memory.ModelContext, budget int, c TokenCounter) (memory.ModelContext, Stats, error) {
	if budget <= 0 {
		return msgs, Stats{IncludedGroups: len(GroupMessages(msgs))}, nil
	}
	window, stats := PrepareSendWindow(msgs, budget, c)
	if stats.OverBudgetNewest {
		return nil, stats, fmt.Errorf("%w (budget %d)", ErrNewestOverBudget, budget)
	}
	return window, stats, nil
}
