package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rivo/uniseg"
)

// ErrValidation is the parent of every input validation failure in this package.
var ErrValidation = errors.New("validation failed")

var (
	ErrInvalidEmail = fmt.Errorf("%w: invalid subscriber email", ErrValidation)
	ErrInvalidName  = fmt.Errorf("%w: invalid subscriber name", ErrValidation)
)

// MaxNameGraphemes is the longest display name accepted, in grapheme clusters.
const MaxNameGraphemes = 256

const forbiddenNameChars = `/()"<>\{}`

var validate = validator.New()

// SubscriberEmail is a validated mailbox address. The zero value is invalid.
type SubscriberEmail struct {
	value string
}

// ParseSubscriberEmail validates s and returns it as a SubscriberEmail.
func ParseSubscriberEmail(s string) (SubscriberEmail, error) {
	if err := validate.Var(s, "required,email"); err != nil {
		return SubscriberEmail{}, fmt.Errorf("%w: %q", ErrInvalidEmail, s)
	}
	return SubscriberEmail{value: s}, nil
}

func (e SubscriberEmail) String() string { return e.value }

// SubscriberName is a validated display name. The zero value is invalid.
type SubscriberName struct {
	value string
}

// ParseSubscriberName rejects names that are not valid UTF-8, empty and
// whitespace-only names, names longer than MaxNameGraphemes grapheme
// clusters, and names containing any of / ( ) " < > \ { }.
func ParseSubscriberName(s string) (SubscriberName, error) {
	switch {
	case !utf8.ValidString(s):
		return SubscriberName{}, fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidName)
	case strings.TrimSpace(s) == "":
		return SubscriberName{}, fmt.Errorf("%w: name is empty", ErrInvalidName)
	case uniseg.GraphemeClusterCount(s) > MaxNameGraphemes:
		return SubscriberName{}, fmt.Errorf("%w: name is longer than %d characters", ErrInvalidName, MaxNameGraphemes)
	case strings.ContainsAny(s, forbiddenNameChars):
		return SubscriberName{}, fmt.Errorf("%w: name contains a forbidden character", ErrInvalidName)
	}
	return SubscriberName{value: s}, nil
}

func (n SubscriberName) String() string { return n.value }

// NewSubscriber is a registration request that passed validation.
type NewSubscriber struct {
	Email SubscriberEmail
	Name  SubscriberName
}

// ParseNewSubscriber validates raw form input. The email is checked first.
func ParseNewSubscriber(email, name string) (NewSubscriber, error) {
	e, err := ParseSubscriberEmail(email)
	if err != nil {
		return NewSubscriber{}, err
	}
	n, err := ParseSubscriberName(name)
	if err != nil {
		return NewSubscriber{}, err
	}
	return NewSubscriber{Email: e, Name: n}, nil
}
