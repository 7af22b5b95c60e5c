package orchestrator

import "regexp"

// mentionPattern matches an explicit @persona reference anywhere in an
// inbound message, per spec §4.10 step 2's "explicit @mention" rule.
var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_-]+)`)

// resolvePersona implements spec §4.10 step 2's persona resolution: an
// explicit @mention in the message wins, otherwise fall back to the
// session's configured default, otherwise "default".
func resolvePersona(inputText, sessionDefault string) string {
	if m := mentionPattern.FindStringSubmatch(inputText); m != nil {
		return m[1]
	}
	if sessionDefault != "" {
		return sessionDefault
	}
	return "default"
}
