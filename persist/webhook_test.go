package persist

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

func TestDeliver_SignsBody(t *testing.T) {
	const secret = "test-secret"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Harvest-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n := NewNotifier(config.PersistConfig{WebhookURL: srv.URL, Secret: secret}, nil)
	outcome := &models.JobOutcome{JobID: "j1", Status: models.StatusSuccess}
	if err := n.Deliver(context.Background(), outcome); err != nil {
		t.Fatal(err)
	}

	want := "sha256=" + Sign(secret, gotBody)
	if !hmac.Equal([]byte(gotSig), []byte(want)) {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var event Event
	if err := json.Unmarshal(gotBody, &event); err != nil {
		t.Fatal(err)
	}
	if event.Type != EventJobCompleted || event.JobID != "j1" {
		t.Errorf("event = %+v", event)
	}
}

func TestDeliver_FailedJobEventType(t *testing.T) {
	var event Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&event)
	}))
	defer srv.Close()

	n := NewNotifier(config.PersistConfig{WebhookURL: srv.URL}, nil)
	outcome := &models.JobOutcome{JobID: "j2", Status: models.StatusFailed, ErrKind: models.ErrKindNavigationTimeout}
	if err := n.Deliver(context.Background(), outcome); err != nil {
		t.Fatal(err)
	}
	if event.Type != EventJobFailed {
		t.Errorf("event type = %q, want %q", event.Type, EventJobFailed)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Harvest-Signature")
	}))
	defer srv.Close()

	n := NewNotifier(config.PersistConfig{WebhookURL: srv.URL}, nil)
	if err := n.Deliver(context.Background(), &models.JobOutcome{JobID: "j3"}); err != nil {
		t.Fatal(err)
	}
	if gotSig != "" {
		t.Errorf("unexpected signature %q without a secret", gotSig)
	}
}

func TestDeliver_UnconfiguredIsNoop(t *testing.T) {
	n := NewNotifier(config.PersistConfig{}, nil)
	if n.Enabled() {
		t.Error("empty webhook URL should disable the notifier")
	}
	if err := n.Deliver(context.Background(), &models.JobOutcome{JobID: "j4"}); err != nil {
		t.Errorf("no-op delivery returned %v", err)
	}
}

func TestDeliver_ErrorStatusSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(config.PersistConfig{WebhookURL: srv.URL}, nil)
	if err := n.Deliver(context.Background(), &models.JobOutcome{JobID: "j5"}); err == nil {
		t.Fatal("want error on 502")
	}
}
