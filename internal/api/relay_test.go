package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/db"
	"github.com/lalithlochan/beacon/internal/relay"
)

type failingForwarder struct{}

func (failingForwarder) Forward(ctx context.Context, payload string) (string, error) {
	return "", relay.ErrUpstreamUnavailable
}

// MockRelayService returns canned results.
type MockRelayService struct {
	submitErr   error
	messagesErr error
	lastFrom    string
}

func (m *MockRelayService) Submit(ctx context.Context, payload, from string) (*relay.SubmitResult, error) {
	m.lastFrom = from
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &relay.SubmitResult{MessageID: 1, Ack: "ACK|X"}, nil
}

func (m *MockRelayService) Messages(ctx context.Context) ([]*relay.MessageRecord, int, error) {
	if m.messagesErr != nil {
		return nil, 0, m.messagesErr
	}
	return nil, 0, nil
}

func newRelayRouter(svc RelayService) http.Handler {
	r := chi.NewRouter()
	NewRelayHandler(zap.NewNop(), svc).Routes(r, nil)
	return r
}

// newRelayStack runs a relay service whose processor stops with the test.
func newRelayStack(t *testing.T, fwd relay.Forwarder) (http.Handler, *relay.Service) {
	t.Helper()
	svc := relay.NewService(relay.NewMemoryStore(), fwd, relay.ProcessorConfig{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		svc.Processor().Wait()
	})
	return newRelayRouter(svc), svc
}

func TestReceiveSMS_ForwardsToCommand(t *testing.T) {
	commandRouter, _ := newMemoryCommandRouter(
		&db.SafeBase{ID: "BASE_SHOLI", Lat: 12.8296, Lon: 80.2270, Capacity: 100, Filled: 10},
	)
	command := httptest.NewServer(commandRouter)
	defer command.Close()

	fwd := relay.NewHTTPForwarder(relay.HTTPForwarderConfig{CommandURL: command.URL, Timeout: time.Second}, zap.NewNop())
	router, _ := newRelayStack(t, fwd)

	rec := doJSON(t, router, http.MethodPost, "/sms-receiver",
		SMSRequest{Payload: "SOS|ID=DEV-1|LAT=12.8296|LON=80.2270|TYPE=FLOOD"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp AckResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if want := "ACK|SAFEBASE=BASE_SHOLI|DIST=0.00KM|CAPACITY=AVAILABLE"; resp.Ack != want {
		t.Errorf("expected %q, got %q", want, resp.Ack)
	}

	rec = doJSON(t, router, http.MethodGet, "/messages", nil)
	var msgs MessagesResponse
	_ = json.NewDecoder(rec.Body).Decode(&msgs)
	if len(msgs.Messages) != 1 || msgs.Messages[0].Status != relay.StatusForwarded || msgs.QueueSize != 0 {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestReceiveSMS_QueuesWhenCommandDown(t *testing.T) {
	router, _ := newRelayStack(t, failingForwarder{})

	rec := doJSON(t, router, http.MethodPost, "/sms-receiver", SMSRequest{Payload: "SOS|ID=DEV-2"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp QueuedResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Queued {
		t.Error("expected queued:true")
	}

	rec = doJSON(t, router, http.MethodGet, "/messages", nil)
	var msgs MessagesResponse
	_ = json.NewDecoder(rec.Body).Decode(&msgs)
	if len(msgs.Messages) != 1 || msgs.Messages[0].Status != relay.StatusQueued {
		t.Errorf("expected one queued record, got %+v", msgs.Messages)
	}
	if msgs.QueueSize != 1 {
		t.Errorf("expected queueSize 1, got %d", msgs.QueueSize)
	}
	if msgs.Messages[0].Ack != nil {
		t.Error("queued record must not carry an ack")
	}
}

func TestReceiveSMS_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"missing payload", map[string]string{}},
		{"empty payload", SMSRequest{Payload: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := newRelayStack(t, failingForwarder{})
			rec := doJSON(t, router, http.MethodPost, "/sms-receiver", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			msgs, _, _ := svc.Messages(context.Background())
			if len(msgs) != 0 {
				t.Error("rejected payloads must not create records")
			}
		})
	}
}

func TestReceiveSMS_PassesSender(t *testing.T) {
	mock := &MockRelayService{}
	rec := doJSON(t, newRelayRouter(mock), http.MethodPost, "/sms-receiver",
		SMSRequest{Payload: "SOS|ID=X", From: "+919800000001"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if mock.lastFrom != "+919800000001" {
		t.Errorf("expected sender to reach the service, got %q", mock.lastFrom)
	}
}

func TestReceiveSMS_StoreFailure(t *testing.T) {
	mock := &MockRelayService{submitErr: errors.New("redis down")}
	rec := doJSON(t, newRelayRouter(mock), http.MethodPost, "/sms-receiver", SMSRequest{Payload: "SOS"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestListMessages_Empty(t *testing.T) {
	rec := doJSON(t, newRelayRouter(&MockRelayService{}), http.MethodGet, "/messages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var raw map[string]json.RawMessage
	_ = json.NewDecoder(rec.Body).Decode(&raw)
	if string(raw["messages"]) != "[]" || string(raw["queueSize"]) != "0" {
		t.Errorf("unexpected body %v", raw)
	}
}

func TestListMessages_StoreFailure(t *testing.T) {
	mock := &MockRelayService{messagesErr: errors.New("redis down")}
	rec := doJSON(t, newRelayRouter(mock), http.MethodGet, "/messages", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
