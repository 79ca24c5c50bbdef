package payload

import "testing"

func TestEmail_CloneIsIndependent(t *testing.T) {
	e := NewEmail("site-1", "A123", []Recipient{{DisplayName: "Duty", Address: "duty@example.org"}}, "body", true)
	c := e.Clone().(*Email)
	c.Recipients[0].Address = "other@example.org"
	if e.Recipients[0].Address == c.Recipients[0].Address {
		t.Fatal("clone must not alias the original recipient slice")
	}
	if !e.Equal(e.Clone()) {
		t.Fatal("an email must equal its own clone")
	}
}

func TestEmail_SetEmptyIsExclusiveMutator(t *testing.T) {
	e := NewEmail("site-1", "A123", nil, "body", false)
	if e.IsEmpty() {
		t.Fatal("freshly constructed email must not be empty")
	}
	e.SetEmpty()
	if !e.IsEmpty() {
		t.Fatal("SetEmpty must mark the payload empty")
	}
}

func TestRest_RejectsBothMessageTextAndTemplate(t *testing.T) {
	if _, err := NewRest("", RestTarget{AllUsers: true}, "hello", "tmpl-1", 0); err == nil {
		t.Fatal("expected ConfigError when both message-text and message-template are set")
	}
}

func TestRest_RejectsAllEmpty(t *testing.T) {
	if _, err := NewRest("", RestTarget{AllUsers: true}, "", "", 0); err == nil {
		t.Fatal("expected ConfigError when no message source is given")
	}
}

func TestRest_RejectsNegativeOpenDuration(t *testing.T) {
	if _, err := NewRest("", RestTarget{AllUsers: true}, "hello", "", -1); err == nil {
		t.Fatal("expected ConfigError for negative event-open-duration")
	}
}

func TestRest_AlarmTemplateRefAloneIsValid(t *testing.T) {
	r, err := NewRest("tmpl-alarm-1", RestTarget{AllUsers: true}, "", "", 2.5)
	if err != nil {
		t.Fatalf("NewRest: %v", err)
	}
	if !r.HasOpenDuration() {
		t.Fatal("expected HasOpenDuration true for a positive event-open-duration")
	}
}

func TestRest_CloneDoesNotAliasTargetCollections(t *testing.T) {
	r, err := NewRest("", RestTarget{Units: []string{"u1"}, Labels: map[string]int{"first-responder": 3}}, "hi", "", 0)
	if err != nil {
		t.Fatalf("NewRest: %v", err)
	}
	c := r.Clone().(*Rest)
	c.Target.Units[0] = "changed"
	c.Target.Labels["first-responder"] = 99
	if r.Target.Units[0] == "changed" || r.Target.Labels["first-responder"] == 99 {
		t.Fatal("clone must not alias the original target collections")
	}
}

func TestExternal_SubstitutesPlaceholders(t *testing.T) {
	e := NewExternal("/usr/bin/notify", "--code $CODE --time \"$TIME\" --type $TYPE")
	got := e.Substitute("A123", "Montag, 01.01.2024 10:00:00", "fire")
	want := `--code A123 --time "Montag, 01.01.2024 10:00:00" --type fire`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInfoalarm_RejectsNilInner(t *testing.T) {
	if _, err := NewInfoalarm(nil, nil); err == nil {
		t.Fatal("expected ConfigError for nil inner payload")
	}
}

func TestInfoalarm_ClonesSiblingsOnConstruction(t *testing.T) {
	inner := NewEmail("s", "A1", nil, "b", true)
	sibling := NewExternal("/bin/true", "")
	ia, err := NewInfoalarm(inner, []Payload{sibling})
	if err != nil {
		t.Fatalf("NewInfoalarm: %v", err)
	}
	sibling.Args = "mutated"
	if ia.Siblings[0].(*External).Args == "mutated" {
		t.Fatal("infoalarm must deep-clone siblings at construction")
	}
}

func TestInfoalarm_GatewayKindDelegatesToInner(t *testing.T) {
	inner := NewExternal("/bin/true", "")
	ia, err := NewInfoalarm(inner, nil)
	if err != nil {
		t.Fatalf("NewInfoalarm: %v", err)
	}
	if ia.GatewayKind() != KindExternal {
		t.Fatalf("got %v, want %v", ia.GatewayKind(), KindExternal)
	}
	if !ia.DeliverImmediately() {
		t.Fatal("infoalarm must always deliver immediately")
	}
}

func TestInfoalarm_EqualComparesInnerAndSiblings(t *testing.T) {
	inner1 := NewEmail("s", "A1", nil, "b", true)
	inner2 := NewEmail("s", "A1", nil, "b", true)
	ia1, _ := NewInfoalarm(inner1, []Payload{NewExternal("/bin/true", "")})
	ia2, _ := NewInfoalarm(inner2, []Payload{NewExternal("/bin/true", "")})
	if !ia1.Equal(ia2) {
		t.Fatal("infoalarms with equal inner and siblings must be equal")
	}
	ia3, _ := NewInfoalarm(inner2, []Payload{NewExternal("/bin/false", "")})
	if ia1.Equal(ia3) {
		t.Fatal("infoalarms with differing siblings must not be equal")
	}
}

func TestFilterEmpty_DropsEmptyPreservingOrder(t *testing.T) {
	keep1 := NewExternal("/bin/true", "")
	drop := NewExternal("/bin/false", "")
	drop.SetEmpty()
	keep2 := NewExternal("/bin/echo", "")
	out := FilterEmpty([]Payload{keep1, drop, keep2})
	if len(out) != 2 || out[0] != Payload(keep1) || out[1] != Payload(keep2) {
		t.Fatalf("unexpected filter result: %+v", out)
	}
}

func TestEqual_AcrossVariantsNeverEqual(t *testing.T) {
	email := NewEmail("s", "A1", nil, "b", true)
	ext := NewExternal("/bin/true", "")
	if email.Equal(ext) || ext.Equal(email) {
		t.Fatal("payloads of different variants must never be equal")
	}
}
