package httpapi

import (
	"context"
	"testing"
	"time"
)

func waitCanceled(t *testing.T, ctx context.Context, msg string) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal(msg)
	}
}

func TestJoinContextsCancelsOnEitherParent(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	b, cancelB := context.WithCancel(context.Background())
	defer cancelB()

	j, release := joinContexts(a, b)
	defer release()

	cancelA()
	waitCanceled(t, j, "joined context still live after first parent canceled")
}

func TestJoinContextsCancelsOnSecondParent(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	b, cancelB := context.WithCancel(context.Background())

	j, release := joinContexts(a, b)
	defer release()

	cancelB()
	waitCanceled(t, j, "joined context still live after second parent canceled")
}

func TestSetBaseContextNilFallsBackToBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SetBaseContext(ctx)
	//nolint:staticcheck // SA1012: nil resets the base context on purpose
	SetBaseContext(nil)

	a, cancelA := context.WithCancel(context.Background())
	b, cancelB := context.WithCancel(context.Background())
	defer cancelB()
	j, release := joinContexts(a, b)
	defer release()

	cancelA()
	waitCanceled(t, j, "joined context ignored parent cancel after base reset")
}
