package negotiator

import "strings"

// Action is a consent decision taken through a message control
type Action string

const (
	CandidateAcceptAction  Action = "cand_accept"
	CandidateDeclineAction Action = "cand_decline"
	RequesterAcceptAction  Action = "req_accept"
	RequesterDeclineAction Action = "req_decline"
)

const actionPrefix = "match"

// ActionID encodes a control id of the form match:<id>:<action>
func ActionID(matchID string, a Action) string {
	return actionPrefix + ":" + matchID + ":" + string(a)
}

// ParseActionID decodes a control id produced by ActionID
func ParseActionID(s string) (string, Action, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != actionPrefix || parts[1] == "" {
		return "", "", false
	}
	a := Action(parts[2])
	switch a {
	case CandidateAcceptAction, CandidateDeclineAction, RequesterAcceptAction, RequesterDeclineAction:
		return parts[1], a, true
	}
	return "", "", false
}
