package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStoreContextRequiresHeader(t *testing.T) {
	mw := StoreContext(nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without store header")
	}
}

func TestStoreContextRejectsMalformedID(t *testing.T) {
	mw := StoreContext(nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("X-Store-Id", "not-a-uuid")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestStoreContextInjectsStoreAndActor(t *testing.T) {
	mw := StoreContext(nil)
	storeID := "3a9f1c2e-8b4d-4f6a-9c1e-2d7b5a8e4f01"
	actorID := "7c2d4e6f-1a3b-4c5d-8e9f-0a1b2c3d4e5f"

	var gotStore, gotActor string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStore = StoreIDFromContext(r.Context())
		gotActor = ActorIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("X-Store-Id", storeID)
	req.Header.Set("X-Actor-Id", actorID)
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotStore != storeID {
		t.Fatalf("store id not propagated, got %q", gotStore)
	}
	if gotActor != actorID {
		t.Fatalf("actor id not propagated, got %q", gotActor)
	}
}

func TestStoreContextIgnoresMalformedActor(t *testing.T) {
	mw := StoreContext(nil)
	storeID := "3a9f1c2e-8b4d-4f6a-9c1e-2d7b5a8e4f01"

	var gotActor string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = ActorIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("X-Store-Id", storeID)
	req.Header.Set("X-Actor-Id", "bogus")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotActor != "" {
		t.Fatalf("expected empty actor id, got %q", gotActor)
	}
}
