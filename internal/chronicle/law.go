package chronicle

import "strings"

// Law is a single rule a persona's response is checked against, per spec
// §4.11 step 1's "configured law set". Checking is left to the Check
// function so callers can compose heuristics or delegate to an external
// classifier; this core only ships simple substring-based laws.
type Law struct {
	Name  string
	Check func(responseText string) (violated bool, reason string)
}

// ForbiddenPhraseLaw builds a Law that flags a response containing any of
// phrases, case-insensitively. A common building block for a law set.
func ForbiddenPhraseLaw(name string, phrases ...string) Law {
	return Law{
		Name: name,
		Check: func(responseText string) (bool, string) {
			lower := strings.ToLower(responseText)
			for _, phrase := range phrases {
				if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
					return true, "response contains forbidden phrase: " + phrase
				}
			}
			return false, ""
		},
	}
}

// DefaultLawSet is the baseline law set applied when a caller supplies
// none: it only catches an assistant claiming a completed task with no
// actual content, a cheap but real signal of a broken response.
var DefaultLawSet = []Law{
	{
		Name: "non-empty-completion",
		Check: func(responseText string) (bool, string) {
			if strings.TrimSpace(responseText) == "" {
				return true, "response is empty"
			}
			return false, ""
		},
	},
}

// cleanJudgmentScore is the rating recorded for a violation-free response
// on clean completion, per spec §4.11 step 1.
const cleanJudgmentScore = 4.0

// violationJudgmentScore is the rating recorded when any law is violated.
const violationJudgmentScore = 1.0

// enforce implements spec §4.11 step 1 in full: validate the response
// against lawSet, record a low judgment and return the violation reasons
// on any hit, or a positive judgment on a clean, task_completed=true
// response. An incomplete but non-violating response (cancelled,
// iteration-cap exhaustion without task_completed) records no judgment at
// all, consistent with spec §9 Open Question 13's "no judgments yet"
// neutral treatment.
func enforce(lawSet []Law, responseText string, taskCompleted bool) (violations []string, judgmentScore float64, recordJudgment bool) {
	for _, law := range lawSet {
		if violated, reason := law.Check(responseText); violated {
			violations = append(violations, reason)
		}
	}
	if len(violations) > 0 {
		return violations, violationJudgmentScore, true
	}
	if taskCompleted {
		return nil, cleanJudgmentScore, true
	}
	return nil, 0, false
}
