package limits

import "testing"

func TestTakeFailsAndLeavesBudgetUnchangedWhenExhausted(t *testing.T) {
	b := NewBudget(1)
	if !b.Take() {
		t.Fatal("expected first Take to succeed")
	}
	if b.Take() {
		t.Fatal("expected second Take to fail")
	}
	if got := b.Remaining(); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}
}

func TestGiveReturnsCapacity(t *testing.T) {
	b := NewBudget(0)
	b.Give()
	if !b.Take() {
		t.Fatal("expected Take to succeed after Give")
	}
}

func TestTakeNAllOrNothing(t *testing.T) {
	b := NewBudget(5)
	if b.TakeN(10) {
		t.Fatal("expected TakeN(10) to fail against a budget of 5")
	}
	if got := b.Remaining(); got != 5 {
		t.Fatalf("remaining = %d, want 5 (failed TakeN must not partially consume)", got)
	}
	if !b.TakeN(5) {
		t.Fatal("expected TakeN(5) to succeed")
	}
}

func TestDefaultPopulatesAllNamedBudgets(t *testing.T) {
	d := Default()
	for name, budget := range map[string]*Budget{
		"Processes": d.Processes,
		"Pipes":     d.Pipes,
		"Handles":   d.Handles,
		"Blocks":    d.Blocks,
	} {
		if budget == nil {
			t.Fatalf("%s budget is nil", name)
		}
		if budget.Remaining() <= 0 {
			t.Fatalf("%s budget has no capacity", name)
		}
	}
}
