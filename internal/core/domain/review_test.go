package domain

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	steps := []struct {
		from, to ReviewStatus
	}{
		{ReviewPending, ReviewAssigned},
		{ReviewAssigned, ReviewInReview},
		{ReviewInReview, ReviewCompleted},
	}
	for _, step := range steps {
		if !CanTransition(step.from, step.to) {
			t.Fatalf("expected %s -> %s to be legal", step.from, step.to)
		}
	}
}

func TestCanTransitionEscalationEdges(t *testing.T) {
	if !CanTransition(ReviewPending, ReviewEscalated) {
		t.Fatalf("pending must escalate on timeout")
	}
	if !CanTransition(ReviewAssigned, ReviewEscalated) {
		t.Fatalf("assigned must escalate on timeout")
	}
	if !CanTransition(ReviewEscalated, ReviewAssigned) {
		t.Fatalf("escalated tasks must stay claimable")
	}
}

func TestCanTransitionRejectsOutOfOrder(t *testing.T) {
	illegal := []struct {
		from, to ReviewStatus
	}{
		{ReviewPending, ReviewCompleted},
		{ReviewPending, ReviewInReview},
		{ReviewCompleted, ReviewAssigned},
		{ReviewAbandoned, ReviewAssigned},
		{ReviewInReview, ReviewPending},
	}
	for _, step := range illegal {
		if CanTransition(step.from, step.to) {
			t.Fatalf("expected %s -> %s to be rejected", step.from, step.to)
		}
	}
}

func TestIsTerminalReview(t *testing.T) {
	if !IsTerminalReview(ReviewCompleted) || !IsTerminalReview(ReviewAbandoned) {
		t.Fatalf("completed and abandoned are terminal")
	}
	if IsTerminalReview(ReviewEscalated) {
		t.Fatalf("escalated is not terminal")
	}
}
