package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExpoClientSend(t *testing.T) {
	var got Message
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewExpoClientWithURL(srv.URL)

	msg := Message{
		To:    "ExponentPushToken[abc]",
		Title: "Driver assigned",
		Body:  "Your delivery has a driver.",
		Data:  map[string]string{"request_id": "r1"},
	}
	if err := c.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if got.To != msg.To || got.Title != msg.Title || got.Data["request_id"] != "r1" {
		t.Errorf("server received %+v, want %+v", got, msg)
	}
}

func TestExpoClientSkipsEmptyToken(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := NewExpoClientWithURL(srv.URL)
	if err := c.Send(context.Background(), Message{Title: "no recipient"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no requests for empty token, got %d", calls)
	}
}

func TestExpoClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewExpoClientWithURL(srv.URL)
	if err := c.Send(context.Background(), Message{To: "ExponentPushToken[x]"}); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}
