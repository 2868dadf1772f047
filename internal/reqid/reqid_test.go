package reqid

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id || id == 0 {
		t.Fatalf("expected %d from context, got %d ok=%v", id, got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/$batch", nil)
	r.Header.Set(Header, "42")
	ctx, id := FromRequest(r)
	if got, _ := FromContext(ctx); id != 42 || got != 42 {
		t.Fatalf("expected client supplied id 42, got %d/%d", id, got)
	}

	r.Header.Set(Header, "not-a-number")
	if _, id := FromRequest(r); id <= 0 {
		t.Fatalf("expected generated id, got %d", id)
	}
}
