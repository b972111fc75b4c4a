package instance

import "testing"

func TestGetIDPrefersExplicitInstance(t *testing.T) {
	t.Setenv("SUPPORTDESK_INSTANCE_ID", "api-7")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "api-7" {
		t.Fatalf("expected api-7 got %s", got)
	}
}

func TestGetIDFallsBackToDyno(t *testing.T) {
	t.Setenv("SUPPORTDESK_INSTANCE_ID", "")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected web.1 got %s", got)
	}
}

func TestClientID(t *testing.T) {
	t.Setenv("SUPPORTDESK_INSTANCE_ID", "a1")
	if got := ClientID("supportdesk-api"); got != "supportdesk-api-a1" {
		t.Fatalf("unexpected client id %s", got)
	}
	if got := ClientID(""); got != "a1" {
		t.Fatalf("unexpected bare client id %s", got)
	}
}
