package domain

import "testing"

// Persisted keys must never drift; these literals pin the derivation.
func TestKeysArePinned(t *testing.T) {
	event := EventKey("Hackathon")
	if event != "fc0afcad-dc12-513b-a2ea-7add249e8ce6" {
		t.Fatalf("event key drifted: %s", event)
	}
	if got := ThemeKey(event, "Green Energy"); got != "f147a916-0361-5ea2-9d24-4dd22cd06e53" {
		t.Fatalf("theme key drifted: %s", got)
	}
	if got := TeamKey(event, "Alpha"); got != "bc844c86-b94a-5df3-a6a2-34ae79de5367" {
		t.Fatalf("team key drifted: %s", got)
	}
}

func TestKeysNormalizeWhitespace(t *testing.T) {
	if EventKey("  Hackathon\t") != EventKey("Hackathon") {
		t.Fatalf("expected surrounding whitespace to be ignored")
	}
}

func TestKeysAreScopedToEvent(t *testing.T) {
	a, b := EventKey("A"), EventKey("B")
	if ThemeKey(a, "X") == ThemeKey(b, "X") {
		t.Fatalf("theme keys must differ across events")
	}
	if TeamKey(a, "X") == TeamKey(b, "X") {
		t.Fatalf("team keys must differ across events")
	}
	if ThemeKey(a, "X") == TeamKey(a, "X") {
		t.Fatalf("theme and team namespaces must not collide")
	}
}
