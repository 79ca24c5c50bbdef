package config

import (
	"testing"

	"alarm-gateway/internal/payload"
	"alarm-gateway/pkg/validator"
)

func TestBuildPayload_RejectsInfoalarmOutsideAllGroup(t *testing.T) {
	c := PayloadConfig{
		Kind:  "infoalarm",
		Inner: &PayloadConfig{Kind: "rest", Target: RestTargetConfig{AllUsers: true}, MessageText: "hi"},
	}
	if _, err := buildPayload(c, false); err == nil {
		t.Fatal("expected infoalarm outside the all-codes group to be rejected")
	}
	if _, err := buildPayload(c, true); err != nil {
		t.Fatalf("infoalarm inside the all-codes group should be accepted, got %v", err)
	}
}

func TestBuildPayload_Email(t *testing.T) {
	c := PayloadConfig{
		Kind:       "email",
		SiteID:     "Org",
		AlarmID:    "Role",
		Recipients: []RecipientConfig{{DisplayName: "Bob Foo", Address: "bob@x"}},
		Body:       "Einsatz",
	}
	p, err := buildPayload(c, false)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if p.GatewayKind() != payload.KindEmail {
		t.Fatalf("expected email gateway kind, got %v", p.GatewayKind())
	}
}

func TestBuildPayload_RestRejectsBothMessageVariants(t *testing.T) {
	c := PayloadConfig{
		Kind:               "rest",
		Target:             RestTargetConfig{AllUsers: true},
		MessageText:        "hi",
		MessageTemplateRef: "tmpl",
	}
	if _, err := buildPayload(c, false); err == nil {
		t.Fatal("expected rejection of both message_text and message_template_ref set")
	}
}

func TestValidateStruct_RejectsEmptyDefaultList(t *testing.T) {
	root := RootConfig{
		Codes: []AlarmValiditiesConfig{{Code: "12345", Default: nil}},
	}
	if err := validator.Struct(root); err == nil {
		t.Fatal("expected validation to reject a code entry with an empty default payload list")
	}
}

func TestToRetryPolicy(t *testing.T) {
	p := toRetryPolicy(RetryPolicyConfig{MaxAttempts: 3, RetryDelaySeconds: 30, MaxConcurrentConnections: 2})
	if p.MaxAttempts != 3 || p.RetryDelaySeconds != 30 || p.MaxConcurrentConnections != 2 {
		t.Fatalf("unexpected retry policy translation: %+v", p)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db.internal", Port: 5432, Username: "gw", Password: "pw", Name: "alarms"}
	got := d.DSN()
	want := "postgres://gw:pw@db.internal:5432/alarms?sslmode=disable"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDatabaseConfig_EmptyHostYieldsEmptyDSN(t *testing.T) {
	if (DatabaseConfig{}).DSN() != "" {
		t.Fatal("expected an empty DSN for an unconfigured database section")
	}
}

func TestDefaultString(t *testing.T) {
	if defaultString("", "fallback") != "fallback" {
		t.Fatal("empty string should fall through to the default")
	}
	if defaultString("set", "fallback") != "set" {
		t.Fatal("non-empty string should be preserved")
	}
}
