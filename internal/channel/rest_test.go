package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/payload"
	domainerrors "alarm-gateway/pkg/errors"
)

func fixedLookup(data map[string]map[string]int) VendorLookup {
	return func(ctx context.Context, category string, page, pageSize int) (map[string]int, int, error) {
		if page > 1 {
			return map[string]int{}, len(data[category]), nil
		}
		return data[category], len(data[category]), nil
	}
}

func newTestRest(t *testing.T, messageText string) *payload.Rest {
	t.Helper()
	r, err := payload.NewRest("", payload.RestTarget{
		Labels: map[string]int{"nurses": 3},
		Units:  []string{"ops"},
	}, messageText, "", 0)
	if err != nil {
		t.Fatalf("NewRest: %v", err)
	}
	return r
}

func TestRestSender_SendSuccessResolvesIDsAndPostsJSON(t *testing.T) {
	var received restRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("API-Token"); got != "tok123" {
			t.Errorf("missing API-Token header, got %q", got)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json content type, got %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	lookup := fixedLookup(map[string]map[string]int{
		"labels": {"nurses": 7},
		"units":  {"ops": 9},
	})
	sender := NewRestSender(RestConfig{Endpoint: srv.URL, APIToken: "tok123", OrganizationID: "org-1"}, lookup)

	msg := gateway.Message{Sequence: 5, Code: "23799", EventTime: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), Payload: newTestRest(t, "hello")}
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if received.OrganizationID != "org-1" {
		t.Fatalf("organizationID not forwarded, got %q", received.OrganizationID)
	}
	if received.EventName != "23799" {
		t.Fatalf("eventName not forwarded, got %q", received.EventName)
	}
	if received.StartTime != "2024-06-01T10:00:00Z" {
		t.Fatalf("unexpected startTime, got %q", received.StartTime)
	}
	if received.AlarmResources == nil || received.AlarmResources.UnitIDs[0] != 9 {
		t.Fatalf("unit id not resolved, got %+v", received.AlarmResources)
	}
	if received.AlarmResources.Labels["nurses"] != 3 {
		t.Fatalf("label headcount not forwarded, got %+v", received.AlarmResources.Labels)
	}
}

func TestRestSender_AlarmTemplateRefSkipsResourceResolution(t *testing.T) {
	var received restRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	lookup := fixedLookup(map[string]map[string]int{"templates": {"standard-resources": 42}})
	sender := NewRestSender(RestConfig{Endpoint: srv.URL, APIToken: "t"}, lookup)

	rest, err := payload.NewRest("standard-resources", payload.RestTarget{}, "hi", "", 0)
	if err != nil {
		t.Fatalf("NewRest: %v", err)
	}
	if err := sender.Send(context.Background(), gateway.Message{Payload: rest}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if received.AlarmResourceTemplateID != 42 {
		t.Fatalf("expected alarmResourceTemplateID 42, got %d", received.AlarmResourceTemplateID)
	}
	if received.AlarmResources != nil {
		t.Fatalf("alarmResources must be omitted when an alarm-template reference is given, got %+v", received.AlarmResources)
	}
}

func TestRestSender_ConnectionRefusedIsFatal(t *testing.T) {
	sender := NewRestSender(RestConfig{Endpoint: "http://127.0.0.1:1", APIToken: "t"}, fixedLookup(nil))
	plain, _ := payload.NewRest("", payload.RestTarget{AllUsers: true}, "hi", "", 0)
	err := sender.Send(context.Background(), gateway.Message{Payload: plain})
	if !domainerrors.Is(err, domainerrors.KindFatalSend) {
		t.Fatalf("expected FatalSend for a connection-refused transport error, got %v", err)
	}
}

func TestRestSender_HostNotFoundIsNonFatal(t *testing.T) {
	sender := NewRestSender(RestConfig{Endpoint: "http://this-host-does-not-resolve.invalid", APIToken: "t"}, fixedLookup(nil))
	plain, _ := payload.NewRest("", payload.RestTarget{AllUsers: true}, "hi", "", 0)
	err := sender.Send(context.Background(), gateway.Message{Payload: plain})
	if !domainerrors.Is(err, domainerrors.KindNonFatalSend) {
		t.Fatalf("expected NonFatalSend for a host-not-found transport error, got %v", err)
	}
}

func TestRestSender_HTTPErrorStatusIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	sender := NewRestSender(RestConfig{Endpoint: srv.URL, APIToken: "t"}, fixedLookup(nil))
	plain, _ := payload.NewRest("", payload.RestTarget{AllUsers: true}, "hi", "", 0)
	err := sender.Send(context.Background(), gateway.Message{Payload: plain})
	if !domainerrors.Is(err, domainerrors.KindFatalSend) {
		t.Fatalf("expected FatalSend for HTTP 500, got %v", err)
	}
}

func TestRestSender_UnresolvedVendorNameIsFatal(t *testing.T) {
	sender := NewRestSender(RestConfig{Endpoint: "http://unused", APIToken: "t"}, fixedLookup(map[string]map[string]int{}))
	msg := gateway.Message{Payload: newTestRest(t, "hi")}
	err := sender.Send(context.Background(), msg)
	if !domainerrors.Is(err, domainerrors.KindFatalSend) {
		t.Fatalf("expected FatalSend for unresolved vendor names, got %v", err)
	}
}

func TestRestSender_ScheduledEndTimePresentWhenEventOpen(t *testing.T) {
	var received restRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rest, err := payload.NewRest("", payload.RestTarget{AllUsers: true}, "hi", "", 2.5)
	if err != nil {
		t.Fatalf("NewRest: %v", err)
	}
	sender := NewRestSender(RestConfig{Endpoint: srv.URL, APIToken: "t"}, fixedLookup(nil))
	msg := gateway.Message{EventTime: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), Payload: rest}
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if received.ScheduledEndTime != "2024-06-01T12:30:00Z" {
		t.Fatalf("unexpected scheduledEndTime, got %q", received.ScheduledEndTime)
	}
}

func TestRestSender_UnwrapsInfoalarmInnerRest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	inner, _ := payload.NewRest("", payload.RestTarget{AllUsers: true}, "infoalarm body", "", 0)
	ia, err := payload.NewInfoalarm(inner, nil)
	if err != nil {
		t.Fatalf("NewInfoalarm: %v", err)
	}
	sender := NewRestSender(RestConfig{Endpoint: srv.URL, APIToken: "t"}, fixedLookup(nil))
	if err := sender.Send(context.Background(), gateway.Message{Payload: ia}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestRestSender_RejectsNonRestPayload(t *testing.T) {
	sender := NewRestSender(RestConfig{Endpoint: "http://unused", APIToken: "t"}, fixedLookup(nil))
	err := sender.Send(context.Background(), gateway.Message{Payload: payload.NewExternal("/bin/true", "")})
	if !domainerrors.Is(err, domainerrors.KindFatalSend) {
		t.Fatalf("expected FatalSend for non-rest payload, got %v", err)
	}
}
