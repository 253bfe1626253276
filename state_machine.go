package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

// VerificationState is the email verification state of an identity.
type VerificationState string

const (
	StateUnverified VerificationState = "unverified"
	StateVerified   VerificationState = "verified"
)

// VerificationTransition names a move in the verification lifecycle.
type VerificationTransition string

const (
	// TransitionVerifyEmail consumes a verification token.
	TransitionVerifyEmail VerificationTransition = "verify_email"
	// TransitionEmailChange moves an identity back to unverified because the
	// address it proved ownership of is gone.
	TransitionEmailChange VerificationTransition = "email_change"
)

const textCodeInvalidTransition = "INVALID_VERIFICATION_TRANSITION"

// ErrInvalidTransition is returned when a transition does not apply to the
// current state.
var ErrInvalidTransition = goerrors.New("invalid verification state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

var verificationTransitions = map[VerificationTransition]struct {
	from []VerificationState
	to   VerificationState
}{
	TransitionVerifyEmail: {
		from: []VerificationState{StateUnverified},
		to:   StateVerified,
	},
	TransitionEmailChange: {
		from: []VerificationState{StateUnverified, StateVerified},
		to:   StateUnverified,
	},
}

// NextVerificationState returns the state reached by applying t from current.
func NextVerificationState(current VerificationState, t VerificationTransition) (VerificationState, error) {
	rule, ok := verificationTransitions[t]
	if !ok {
		return current, ErrInvalidTransition
	}

	for _, from := range rule.from {
		if from == current {
			return rule.to, nil
		}
	}

	return current, ErrInvalidTransition
}

// EmailChange describes the EmailChangeTransition: the new address plus the
// verification token that will prove ownership of it.
type EmailChange struct {
	Email             string
	VerificationToken string
}

// RequiresEmailChange reports whether updating u to email must run the
// email change transition.
func RequiresEmailChange(u *User, email string) bool {
	return u != nil && email != "" && email != u.Email
}
