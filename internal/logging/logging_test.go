package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/odatabatch/internal/batch"
	eventbus "github.com/hanpama/odatabatch/internal/eventbus"
	events "github.com/hanpama/odatabatch/internal/events"
	reqid "github.com/hanpama/odatabatch/internal/reqid"
)

func useBus(t *testing.T) {
	t.Helper()
	prev := eventbus.Current()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(prev) })
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m), l)
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestRegister_TagsRequestID(t *testing.T) {
	useBus(t)
	var buf bytes.Buffer
	defer Register(New(&buf, "debug", false))()

	ctx, rid := reqid.NewContext(context.Background())
	eventbus.Publish(ctx, events.BatchFinish{Operations: 3, FailedChangeSets: 1, Duration: time.Millisecond})

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "batch finished", got[0]["message"])
	assert.EqualValues(t, rid, got[0]["request_id"])
	assert.EqualValues(t, 3, got[0]["operations"])
	assert.EqualValues(t, 1, got[0]["failed_changesets"])
}

func TestRegister_Levels(t *testing.T) {
	useBus(t)
	var buf bytes.Buffer
	defer Register(New(&buf, "info", false))()

	ctx := context.Background()
	eventbus.Publish(ctx, events.ChangeSetFinish{Operation: 1, Size: 2, Dispatched: 1, State: batch.Failed})
	eventbus.Publish(ctx, events.ChangeSetFinish{Operation: 2, Size: 1, Dispatched: 1, State: batch.Completed})
	eventbus.Publish(ctx, events.DispatchFinish{Operation: 0, Member: -1, Method: "GET", Path: "Employees", Status: 500, Err: errors.New("connection refused")})
	eventbus.Publish(ctx, events.DispatchFinish{Operation: 0, Member: -1, Method: "GET", Path: "People", Status: 200})
	// debug lines are filtered at info
	eventbus.Publish(ctx, events.GRPCClientFinish{Route: "Employees"})

	got := lines(t, &buf)
	require.Len(t, got, 4)
	assert.Equal(t, "warn", got[0]["level"])
	assert.Equal(t, "failed", got[0]["state"])
	assert.Equal(t, "info", got[1]["level"])
	assert.Equal(t, "completed", got[1]["state"])
	assert.Equal(t, "error", got[2]["level"])
	assert.Equal(t, "connection refused", got[2]["error"])
	assert.Equal(t, "Employees", got[2]["path"])
	assert.Equal(t, "info", got[3]["level"])
	assert.NotContains(t, got[0], "request_id")
}

func TestRegister_OrderingErrorAttached(t *testing.T) {
	useBus(t)
	var buf bytes.Buffer
	defer Register(New(&buf, "info", false))()

	err := &batch.OrderError{Err: batch.ErrDependencyCycle, Pending: []string{"$1", "$2"}}
	eventbus.Publish(context.Background(), events.ChangeSetFinish{Operation: 0, Size: 2, State: batch.Failed, Err: err})

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, err.Error(), got[0]["error"])
}

func TestRegister_HTTPFinish(t *testing.T) {
	useBus(t)
	var buf bytes.Buffer
	defer Register(New(&buf, "info", false))()

	r := httptest.NewRequest("POST", "/odata/$batch", nil)
	eventbus.Publish(context.Background(), events.HTTPFinish{Request: r, Status: 202, Bytes: 120})
	eventbus.Publish(context.Background(), events.HTTPFinish{Request: r, Status: 500})

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "/odata/$batch", got[0]["path"])
	assert.EqualValues(t, 202, got[0]["status"])
	assert.EqualValues(t, 120, got[0]["bytes"])
	assert.Equal(t, "error", got[1]["level"])
}

func TestUnsubscribe(t *testing.T) {
	useBus(t)
	var buf bytes.Buffer
	Register(New(&buf, "debug", false))()

	eventbus.Publish(context.Background(), events.BatchFinish{Operations: 1})
	assert.Empty(t, buf.String())
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", true)
	logger.Info().Str("k", "v").Msg("hello")
	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "k=v")
}
