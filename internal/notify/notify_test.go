package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KingRain/octrix/internal/models"
)

func TestWebhookSinkDeliversAlert(t *testing.T) {
	received := make(chan payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		received <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, 2*time.Second, nil)
	sink.Notify(models.Alert{
		ID:         "alert-1",
		IncidentID: "inc-1",
		Category:   models.CategoryPodCrash,
		Severity:   models.SeverityHigh,
		Message:    "pod api-1 crashed",
	})

	select {
	case p := <-received:
		if p.Kind != "alert" || p.Alert == nil || p.Alert.IncidentID != "inc-1" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook delivery timed out")
	}
}

func TestWebhookSinkDeliversEscalation(t *testing.T) {
	received := make(chan payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- p
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, 2*time.Second, nil)
	sink.NotifyEscalation(models.EscalationRecord{
		ID:         "esc-1",
		IncidentID: "inc-1",
		Reason:     "automation is frozen",
	})

	select {
	case p := <-received:
		if p.Kind != "escalation" || p.Escalation == nil || p.Escalation.Reason != "automation is frozen" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook delivery timed out")
	}
}

// payload mirrors the wire shape for decoding in tests.
type payload struct {
	Kind       string                   `json:"kind"`
	Alert      *models.Alert            `json:"alert"`
	Escalation *models.EscalationRecord `json:"escalation"`
}
