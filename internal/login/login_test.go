package login

import (
	"testing"

	"alarm-gateway/internal/payload"
)

func TestDatabase_SetRejectsInvalidRetryPolicy(t *testing.T) {
	d := NewDatabase()
	bad := Login{Retry: RetryPolicy{MaxAttempts: 0, RetryDelaySeconds: 5, MaxConcurrentConnections: 2}}
	if err := d.Set(payload.KindEmail, bad); err == nil {
		t.Fatal("expected error for max-attempts < 1")
	}
}

func TestDatabase_SearchReturnsClone(t *testing.T) {
	d := NewDatabase()
	l := Login{
		Credentials: Credentials{Kind: payload.KindRest, Endpoint: "https://example.org", APIToken: "tok"},
		Retry:       RetryPolicy{MaxAttempts: 3, RetryDelaySeconds: 30, MaxConcurrentConnections: 2},
	}
	if err := d.Set(payload.KindRest, l); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := d.Search(payload.KindRest)
	if !ok {
		t.Fatal("expected login to be found")
	}
	got.Credentials.APIToken = "mutated"
	got2, _ := d.Search(payload.KindRest)
	if got2.Credentials.APIToken == "mutated" {
		t.Fatal("Search must return an independent clone")
	}
}

func TestDatabase_SearchMissingKind(t *testing.T) {
	d := NewDatabase()
	if _, ok := d.Search(payload.KindExternal); ok {
		t.Fatal("expected no login for an unconfigured kind")
	}
}

func TestDatabase_KindsReflectsInstalledLogins(t *testing.T) {
	d := NewDatabase()
	d.Set(payload.KindEmail, Login{Retry: RetryPolicy{MaxAttempts: 1, MaxConcurrentConnections: 1}})
	d.Set(payload.KindRest, Login{Retry: RetryPolicy{MaxAttempts: 1, MaxConcurrentConnections: 1}})
	kinds := d.Kinds()
	if len(kinds) != 2 {
		t.Fatalf("expected 2 kinds, got %+v", kinds)
	}
}
