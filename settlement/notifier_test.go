package settlement

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPNotifier_Dispatch(t *testing.T) {
	var got struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL, time.Second)
	if err := n.Dispatch(context.Background(), "auction.assigned", []byte(`{"taskId":"t1"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Topic != "auction.assigned" {
		t.Fatalf("unexpected topic %q", got.Topic)
	}

	var payload map[string]string
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload not passed through verbatim: %v", err)
	}
	if payload["taskId"] != "t1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestHTTPNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL, time.Second)
	if err := n.Notify(context.Background(), "x", map[string]any{"a": 1}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestHTTPPaymentClient_Deposit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deposits" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["buyerId"] != "u1" {
			t.Errorf("unexpected request: %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reference": "dep-42"})
	}))
	defer srv.Close()

	c := NewHTTPPaymentClient(srv.URL, time.Second)
	ref, err := c.Deposit(context.Background(), "u1", 500, "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "dep-42" {
		t.Fatalf("unexpected reference %q", ref)
	}
}

func TestHTTPPaymentClient_GatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPPaymentClient(srv.URL, time.Second)
	if _, err := c.Deposit(context.Background(), "u1", 500, "USD"); err == nil {
		t.Fatal("expected error on 503 response")
	}
}
