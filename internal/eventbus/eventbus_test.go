package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func withBus(t *testing.T) {
	t.Helper()
	prev := global.Load()
	Use(New())
	t.Cleanup(func() { Use(prev) })
}

func TestPublishDispatchesByType(t *testing.T) {
	withBus(t)
	var got []int
	Subscribe(func(ctx context.Context, e ping) { got = append(got, e.n) })
	Subscribe(func(ctx context.Context, e ping) { got = append(got, e.n*10) })
	pongs := 0
	Subscribe(func(ctx context.Context, e pong) { pongs++ })

	Publish(context.Background(), ping{n: 1})
	Publish(context.Background(), ping{n: 2})

	require.Equal(t, []int{1, 10, 2, 20}, got)
	require.Zero(t, pongs)
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	withBus(t)
	var a, b int
	// Same closure shape twice; unsubscribing the first must keep the second.
	mk := func(dst *int) Handler[ping] { return func(context.Context, ping) { *dst++ } }
	unA := Subscribe(mk(&a))
	Subscribe(mk(&b))

	unA()
	unA()
	Publish(context.Background(), ping{})
	require.Equal(t, 0, a)
	require.Equal(t, 1, b)
}

func TestPublishWithoutBus(t *testing.T) {
	prev := global.Load()
	Use(nil)
	t.Cleanup(func() { Use(prev) })

	un := Subscribe(func(context.Context, ping) { t.Fatal("unexpected call") })
	Publish(context.Background(), ping{})
	un()
}
