package export

import (
	"context"
	"testing"
)

func TestLocalRunLock(t *testing.T) {
	ctx := context.Background()
	l := NewLocalRunLock()

	release, ok, err := l.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got %v %v", ok, err)
	}
	if _, ok, _ := l.TryAcquire(ctx); ok {
		t.Fatal("expected second acquire to be refused while held")
	}
	release()

	release, ok, _ = l.TryAcquire(ctx)
	if !ok {
		t.Fatal("expected acquire after release to succeed")
	}
	release()
}
