package container

import "testing"

func TestCanTransitionAllowsEveryDocumentedEdge(t *testing.T) {
	allowed := []struct{ from, to State }{
		{Created, Running},
		{Running, Paused},
		{Running, Stopped},
		{Paused, Running},
		{Paused, Stopped},
	}
	for _, tc := range allowed {
		if !canTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransitionRejectsUndocumentedEdges(t *testing.T) {
	denied := []struct{ from, to State }{
		{Created, Paused},
		{Created, Stopped},
		{Stopped, Running},
		{Stopped, Created},
		{Running, Created},
	}
	for _, tc := range denied {
		if canTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}
