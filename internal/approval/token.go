package approval

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the decision carried by a control activation.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDecline Action = "decline"
)

// Kind identifies the request family a token belongs to.
type Kind string

const (
	// KindLeave is a leave-of-absence request. Param holds the duration in days.
	KindLeave Kind = "loa"

	// KindRole is a role-grant request. Param holds the requested capability.
	KindRole Kind = "role"
)

const (
	tokenDelimiter  = ":"
	tokenFieldCount = 5
)

// ErrMalformedToken is returned when a decision token cannot be decoded.
var ErrMalformedToken = errors.New("malformed decision token")

// DecisionToken is the identity payload embedded in a decision control.
// Because no store backs pending requests, everything needed to act on a
// decision must be recoverable from the token alone.
type DecisionToken struct {
	Action      Action
	Kind        Kind
	RequesterID string
	SubjectID   string
	Param       string
}

// Encode serializes the token into the control identity string.
func (t DecisionToken) Encode() string {
	return strings.Join([]string{
		string(t.Action),
		string(t.Kind),
		t.RequesterID,
		t.SubjectID,
		t.Param,
	}, tokenDelimiter)
}

// ParseDecisionToken decodes a control identity string. Wrong field counts
// and unknown action/kind values are ErrMalformedToken, not a crash. Param
// is the tail field, so a capability name containing the delimiter survives
// the round trip.
func ParseDecisionToken(s string) (DecisionToken, error) {
	parts := strings.SplitN(s, tokenDelimiter, tokenFieldCount)
	if len(parts) != tokenFieldCount {
		return DecisionToken{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformedToken, len(parts), tokenFieldCount)
	}

	tok := DecisionToken{
		Action:      Action(parts[0]),
		Kind:        Kind(parts[1]),
		RequesterID: parts[2],
		SubjectID:   parts[3],
		Param:       parts[4],
	}

	switch tok.Action {
	case ActionApprove, ActionDecline:
	default:
		return DecisionToken{}, fmt.Errorf("%w: unknown action %q", ErrMalformedToken, parts[0])
	}

	switch tok.Kind {
	case KindLeave, KindRole:
	default:
		return DecisionToken{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedToken, parts[1])
	}

	if tok.RequesterID == "" || tok.SubjectID == "" || tok.Param == "" {
		return DecisionToken{}, fmt.Errorf("%w: empty field", ErrMalformedToken)
	}

	return tok, nil
}
