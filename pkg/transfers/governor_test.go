package transfers

import (
	"context"
	"testing"
	"time"
)

func TestGovernorUnlimitedByDefault(t *testing.T) {
	g := NewGovernor()
	if !g.HasBudget(Download, "default") {
		t.Error("fresh governor should have budget")
	}

	sg := g.Stream(Upload, "default")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sg.WaitN(ctx, 10<<20); err != nil {
		t.Fatalf("unlimited WaitN: %v", err)
	}
}

func TestGovernorBudgetExhaustion(t *testing.T) {
	g := NewGovernor()
	g.SetGroupLimit(Download, "leechers", 1024)

	sg := g.Stream(Download, "leechers")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Drain the one-second burst.
	if err := sg.WaitN(ctx, 1024); err != nil {
		t.Fatalf("draining burst: %v", err)
	}
	if g.HasBudget(Download, "leechers") {
		t.Error("expected exhausted group bucket")
	}

	// Unrelated groups keep their budget.
	if !g.HasBudget(Download, "default") {
		t.Error("default group should be unaffected")
	}
}

func TestGovernorWaitNHonorsCancellation(t *testing.T) {
	g := NewGovernor()
	g.SetGlobalLimit(Upload, 16)

	sg := g.Stream(Upload, "default")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		// Far more than the bucket refills in the test's lifetime.
		done <- sg.WaitN(ctx, 1<<20)
	}()
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitN did not return after cancellation")
	}
}

func TestGovernorWaitClampsToSmallBurst(t *testing.T) {
	g := NewGovernor()
	// Rate below the request size; the wait must still complete by
	// acquiring in burst-sized steps.
	g.SetGroupLimit(Download, "slow", 1024)

	sg := g.Stream(Download, "slow")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sg.WaitN(ctx, 2048); err != nil {
		t.Fatalf("WaitN above burst size: %v", err)
	}
}

func TestGovernorReconfigure(t *testing.T) {
	g := NewGovernor()
	g.SetGroupLimit(Download, "vip", 1<<20)
	g.SetGroupLimit(Upload, "vip", 1<<20)

	names := g.GroupNames()
	if len(names) != 1 || names[0] != "vip" {
		t.Fatalf("GroupNames = %v, want [vip]", names)
	}

	g.DropGroup("vip")
	if len(g.GroupNames()) != 0 {
		t.Errorf("GroupNames after drop = %v, want none", g.GroupNames())
	}
	// Dropped groups fall back to the global bucket only.
	if !g.HasBudget(Download, "vip") {
		t.Error("dropped group should inherit the unlimited global budget")
	}
}
