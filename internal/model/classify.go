package model

import "strings"

var clientSideKeywords = []string{"xss", "csrf", "dom", "client-side"}

// IsClientSide decides whether a finding concerns browser-side behaviour.
// Tags are consulted first; the name is matched against keywords only when
// no tag mentions a client-side category.
func IsClientSide(f Finding) bool {
	for _, tag := range f.Tags {
		if containsAny(strings.ToLower(tag), clientSideKeywords) {
			return true
		}
	}
	return containsAny(strings.ToLower(f.Name), clientSideKeywords)
}

// ClassifyAttackVector maps a finding onto a coarse attack category.
func ClassifyAttackVector(f Finding) AttackVector {
	text := strings.ToLower(f.Name + " " + strings.Join(f.Tags, " "))
	switch {
	case containsAny(text, []string{"xss", "cross site scripting", "cross-site scripting"}):
		return VectorXSS
	case containsAny(text, []string{"csrf", "cross-site request forgery", "cross site request forgery"}):
		return VectorCSRF
	case containsAny(text, []string{"clickjacking", "x-frame-options", "frame-ancestors"}):
		return VectorClickjacking
	case containsAny(text, []string{"cors", "cross-domain", "access-control-allow-origin"}):
		return VectorCORS
	case containsAny(text, []string{"injection", "sqli", "sql ", "command"}):
		return VectorInjection
	}
	return VectorOther
}

// Annotate sets ClientSide and AttackVector on every finding in place.
func Annotate(findings []Finding) {
	for i := range findings {
		cs := IsClientSide(findings[i])
		findings[i].ClientSide = &cs
		findings[i].AttackVector = ClassifyAttackVector(findings[i])
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
