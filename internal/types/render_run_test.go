package types

import "testing"

func TestRunStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RunStatus
		ok       bool
	}{
		{RunStatusPending, RunStatusRunning, true},
		{RunStatusRunning, RunStatusComplete, true},
		{RunStatusRunning, RunStatusPartial, true},
		{RunStatusRunning, RunStatusFailed, true},
		{RunStatusPending, RunStatusComplete, false},
		{RunStatusComplete, RunStatusRunning, false},
		{RunStatusFailed, RunStatusRunning, false},
		{RunStatusPartial, RunStatusFailed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: want %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestVariantStatusTerminalNeverTransitions(t *testing.T) {
	terminals := []VariantStatus{VariantStatusSuccess, VariantStatusFailed, VariantStatusTimeout}
	all := []VariantStatus{VariantStatusPending, VariantStatusRunning, VariantStatusSuccess, VariantStatusFailed, VariantStatusTimeout}
	for _, from := range terminals {
		for _, to := range all {
			if from.CanTransition(to) {
				t.Fatalf("terminal %s should not transition to %s", from, to)
			}
		}
	}
}

func TestAggregateRunStatus(t *testing.T) {
	mk := func(statuses ...VariantStatus) []*VariantResult {
		out := make([]*VariantResult, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, &VariantResult{Status: s})
		}
		return out
	}

	if got := AggregateRunStatus(mk(VariantStatusSuccess, VariantStatusSuccess)); got != RunStatusComplete {
		t.Fatalf("all success: want complete got %s", got)
	}
	if got := AggregateRunStatus(mk(VariantStatusSuccess, VariantStatusTimeout, VariantStatusFailed)); got != RunStatusPartial {
		t.Fatalf("mixed: want partial got %s", got)
	}
	if got := AggregateRunStatus(mk(VariantStatusFailed, VariantStatusTimeout)); got != RunStatusFailed {
		t.Fatalf("none succeeded: want failed got %s", got)
	}
	if got := AggregateRunStatus(nil); got != RunStatusFailed {
		t.Fatalf("empty: want failed got %s", got)
	}
}
