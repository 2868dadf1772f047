package executor

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/odatabatch/internal/batch"
	eventbus "github.com/hanpama/odatabatch/internal/eventbus"
	events "github.com/hanpama/odatabatch/internal/events"
)

type recorder struct {
	mu  sync.Mutex
	got []any
}

func (r *recorder) add(_ context.Context, e any) {
	r.mu.Lock()
	r.got = append(r.got, e)
	r.mu.Unlock()
}

func record(t *testing.T) *recorder {
	t.Helper()
	prev := eventbus.Current()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(prev) })

	r := &recorder{}
	eventbus.Subscribe(func(ctx context.Context, e events.BatchStart) { r.add(ctx, e) })
	eventbus.Subscribe(func(ctx context.Context, e events.BatchFinish) { r.add(ctx, e) })
	eventbus.Subscribe(func(ctx context.Context, e events.ChangeSetStart) { r.add(ctx, e) })
	eventbus.Subscribe(func(ctx context.Context, e events.ChangeSetFinish) { r.add(ctx, e) })
	eventbus.Subscribe(func(ctx context.Context, e events.DispatchStart) { r.add(ctx, e) })
	eventbus.Subscribe(func(ctx context.Context, e events.DispatchFinish) { r.add(ctx, e) })
	return r
}

// Pattern: Event sequence comparison
func TestEvents_PublishedInExecutionOrder(t *testing.T) {
	r := record(t)
	d := NewMockDispatcher(map[string]MockHandler{
		"GET Employees":  NewMockStatusHandler(http.StatusOK, "[]"),
		"POST Employees": NewMockCreatedHandler("Employees('1')"),
	})

	NewExecutor(d).Run(context.Background(), []batch.Operation{
		batch.Single{Request: batch.Request{Method: "GET", Path: "Employees"}},
		batch.ChangeSet{Requests: []batch.Request{
			post("2", "$1/Address"),
			post("1", "Employees"),
		}},
	})

	want := []any{
		events.BatchStart{Operations: 2},
		events.DispatchStart{Operation: 0, Member: -1, Method: "GET", Path: "Employees"},
		events.DispatchFinish{Operation: 0, Member: -1, Method: "GET", Path: "Employees", Status: 200},
		events.ChangeSetStart{Operation: 1, Size: 2},
		events.DispatchStart{Operation: 1, Member: 0, Method: "POST", Path: "Employees", ContentID: "1"},
		events.DispatchFinish{Operation: 1, Member: 0, Method: "POST", Path: "Employees", ContentID: "1", Status: 201},
		events.DispatchStart{Operation: 1, Member: 1, Method: "POST", Path: "Employees('1')/Address", ContentID: "2"},
		events.DispatchFinish{Operation: 1, Member: 1, Method: "POST", Path: "Employees('1')/Address", ContentID: "2", Status: 404},
		events.ChangeSetFinish{Operation: 1, Size: 2, Dispatched: 2, State: batch.Failed},
		events.BatchFinish{Operations: 2, FailedChangeSets: 1},
	}
	ignoreDurations := cmp.Options{
		cmpopts.IgnoreFields(events.BatchFinish{}, "Duration"),
		cmpopts.IgnoreFields(events.ChangeSetFinish{}, "Duration"),
		cmpopts.IgnoreFields(events.DispatchFinish{}, "Duration"),
	}
	if diff := cmp.Diff(want, r.got, ignoreDurations); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestEvents_OrderingErrorReported(t *testing.T) {
	r := record(t)
	NewExecutor(NewMockDispatcher(nil)).Run(context.Background(), []batch.Operation{
		batch.ChangeSet{Requests: []batch.Request{post("1", "$1/Self")}},
	})

	var finish *events.ChangeSetFinish
	for _, e := range r.got {
		if f, ok := e.(events.ChangeSetFinish); ok {
			finish = &f
		}
	}
	require.NotNil(t, finish)
	require.Equal(t, batch.Failed, finish.State)
	require.Zero(t, finish.Dispatched)
	require.ErrorIs(t, finish.Err, batch.ErrDependencyCycle)
}

func TestDispatch_ContextCarriesMember(t *testing.T) {
	var got []events.Member
	d := DispatcherFunc(func(ctx context.Context, req batch.Request) (batch.Result, error) {
		m, ok := events.MemberFromContext(ctx)
		require.True(t, ok)
		got = append(got, m)
		return batch.Result{StatusCode: http.StatusNoContent}, nil
	})
	NewExecutor(d).Run(context.Background(), []batch.Operation{
		batch.Single{Request: batch.Request{Method: "GET", Path: "A"}},
		batch.ChangeSet{Requests: []batch.Request{post("1", "B"), post("2", "C")}},
	})
	require.Equal(t, []events.Member{{Operation: 0, Index: -1}, {Operation: 1, Index: 0}, {Operation: 1, Index: 1}}, got)
}
