package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestModelRendersResult(t *testing.T) {
	m := newModel("seed apply", time.Second, nil)
	next, _ := m.Update(resultMsg{details: []string{"promoted admin"}})
	view := next.(model).View()
	if !strings.Contains(view, "OK") || !strings.Contains(view, "promoted admin") {
		t.Fatalf("unexpected view: %q", view)
	}
}

func TestModelRendersFailure(t *testing.T) {
	m := newModel("migrate up", time.Second, nil)
	next, _ := m.Update(resultMsg{err: errors.New("db down")})
	view := next.(model).View()
	if !strings.Contains(view, "FAILED") || !strings.Contains(view, "db down") {
		t.Fatalf("unexpected view: %q", view)
	}
}

func TestRunActionHonorsTimeout(t *testing.T) {
	m := newModel("loadgen run", 10*time.Millisecond, func(ctx context.Context) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	msg := m.runAction()()
	res, ok := msg.(resultMsg)
	if !ok {
		t.Fatalf("unexpected msg %T", msg)
	}
	if !errors.Is(res.err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", res.err)
	}
}
