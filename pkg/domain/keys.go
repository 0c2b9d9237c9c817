package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Namespaces for name-based (v5) keys. Changing any of these invalidates every
// persisted key, so they are fixed for the lifetime of the data format.
var (
	eventNamespace = uuid.MustParse("8d3f2c6e-5b1a-4f0e-9c7d-2a6b4e8f1c35")
	themeNamespace = uuid.MustParse("1e7a9b42-6c3d-4d8f-b5a0-7f2e9c1d4b68")
	teamNamespace  = uuid.MustParse("c4b61f09-3e2a-4a57-8d1c-95f0e7a3b2d4")
)

// NormalizeName trims surrounding whitespace. Names are compared and hashed
// in normalized form.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// EventKey derives the stable key of an event from its name.
func EventKey(name string) string {
	return uuid.NewSHA1(eventNamespace, []byte(NormalizeName(name))).String()
}

// ThemeKey derives the stable key of a theme scoped to its event.
func ThemeKey(eventKey, name string) string {
	return uuid.NewSHA1(themeNamespace, scoped(eventKey, name)).String()
}

// TeamKey derives the stable key of a team scoped to its event.
func TeamKey(eventKey, name string) string {
	return uuid.NewSHA1(teamNamespace, scoped(eventKey, name)).String()
}

func scoped(eventKey, name string) []byte {
	return []byte(eventKey + "\x00" + NormalizeName(name))
}
