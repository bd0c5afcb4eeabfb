package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

// fakeTx satisfies pgx.Tx through the embedded interface; only identity
// matters for these tests.
type fakeTx struct{ pgx.Tx }

func TestWithTx_RoundTrip(t *testing.T) {
	tx := &fakeTx{}
	ctx := WithTx(context.Background(), tx)
	if got := TxFromContext(ctx); got != tx {
		t.Errorf("expected stored tx, got %v", got)
	}
}

func TestTxRunner_JoinsOuterTransaction(t *testing.T) {
	// A nil pool would panic on Begin, so reaching fn proves the outer
	// transaction was reused.
	r := NewTxRunner(nil)
	ctx := WithTx(context.Background(), &fakeTx{})

	called := false
	err := r.InTx(ctx, func(inner context.Context) error {
		called = true
		if TxFromContext(inner) == nil {
			t.Error("expected inner context to carry the outer tx")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}

	sentinel := errors.New("boom")
	if err := r.InTx(ctx, func(context.Context) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected fn error to propagate, got %v", err)
	}
}
