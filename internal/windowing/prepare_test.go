package windowing_test

import (
	"errors"
	"testing"

	"github.com/petasbytes/memchat/internal/windowing"
	"github.com/petasbytes/memchat/memory"
)

func TestPrepareSendWindow_BudgetRespected_OrderPreserved(t *testing.T) {
	msgs := ctxOf(
		U("old"), M("reply"), // G0: 7 + 9 = 16
		U("ab"), M("cd"), // G1: 6 + 6 = 12
		U("tail"), // G2: 8
	)
	budget := 20 // G2 + G1

	window, stats := windowing.PrepareSendWindow(msgs, budget, windowing.HeuristicCounter{})

	if stats.Total != 20 || stats.IncludedGroups != 2 || stats.SkippedGroups != 1 || stats.OverBudgetNewest {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	want := ctxOf(U("ab"), M("cd"), U("tail"))
	if len(window) != len(want) {
		t.Fatalf("window length got %d want %d", len(window), len(want))
	}
	for i := range want {
		if window[i] != want[i] {
			t.Fatalf("window[%d] = %+v, want %+v", i, window[i], want[i])
		}
	}
}

func TestPrepareSendWindow_NeverSplitsPair(t *testing.T) {
	msgs := ctxOf(U("aaaa"), M("bbbbbbbbbbbb"), U("q"))
	// Pending prompt costs 5, the pair costs 24. A budget of 20 would fit the
	// model reply on its own but not the whole pair.
	window, stats := windowing.PrepareSendWindow(msgs, 20, windowing.HeuristicCounter{})
	if len(window) != 1 || window[0] != U("q") {
		t.Fatalf("expected only the prompt, got %+v", window)
	}
	if stats.IncludedGroups != 1 || stats.SkippedGroups != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPrepareSendWindow_NewestGroupOverBudget(t *testing.T) {
	msgs := ctxOf(U("old"), M("x"), U("a very long prompt"))
	window, stats := windowing.PrepareSendWindow(msgs, 10, windowing.HeuristicCounter{})
	if len(window) != 0 {
		t.Fatalf("expected empty window; got=%d", len(window))
	}
	if !stats.OverBudgetNewest || stats.IncludedGroups != 0 || stats.SkippedGroups != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPrepareSendWindow_NoCapacityBudget(t *testing.T) {
	window, stats := windowing.PrepareSendWindow(ctxOf(U("x")), 0, windowing.HeuristicCounter{})
	if len(window) != 0 || !stats.OverBudgetNewest || stats.SkippedGroups != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPrepareSendWindow_Empty(t *testing.T) {
	window, stats := windowing.PrepareSendWindow(nil, 10, windowing.HeuristicCounter{})
	if window != nil || stats != (windowing.Stats{Budget: 10}) {
		t.Fatalf("unexpected result: %v %+v", window, stats)
	}
}

func TestPrepareSendWindow_EverythingFits(t *testing.T) {
	msgs := ctxOf(U("a"), M("b"), U("c"))
	window, stats := windowing.PrepareSendWindow(msgs, 1000, windowing.HeuristicCounter{})
	if len(window) != 3 || stats.SkippedGroups != 0 || stats.Total != 15 {
		t.Fatalf("unexpected result: %v %+v", window, stats)
	}
}

func TestFit_ZeroBudgetIsUnlimited(t *testing.T) {
	msgs := ctxOf(U("a"), M("b"), U("c"))
	window, _, err := windowing.Fit(msgs, 0, windowing.HeuristicCounter{})
	if err != nil || len(window) != 3 {
		t.Fatalf("got %v, %v", window, err)
	}
}

func TestFit_NewestOverBudgetIsError(t *testing.T) {
	_, stats, err := windowing.Fit(ctxOf(U("far too long for the budget")), 5, windowing.HeuristicCounter{})
	if !errors.Is(err, windowing.ErrNewestOverBudget) {
		t.Fatalf("expected ErrNewestOverBudget, got %v", err)
	}
	if !stats.OverBudgetNewest {
		t.Fatalf("expected OverBudgetNewest stats, got %+v", stats)
	}
}

func TestFit_DropsOldestPairs(t *testing.T) {
	var msgs memory.ModelContext
	for i := 0; i < 10; i++ {
		msgs = append(msgs, U("q"), M("a"))
	}
	msgs = append(msgs, U("now"))
	window, stats, err := windowing.Fit(msgs, 30, windowing.HeuristicCounter{})
	if err != nil {
		t.Fatal(err)
	}
	// prompt 7, each pair 10: two pairs fit.
	if len(window) != 5 || stats.IncludedGroups != 3 {
		t.Fatalf("unexpected window %d msgs, stats %+v", len(window), stats)
	}
	if window[0].Role != memory.ContextUser {
		t.Fatalf("window must start at a user message, got %+v", window[0])
	}
}
