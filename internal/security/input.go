// Package security masks push channel credentials and screens free-text
// names before they reach storage.
package security

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInputTooLarge     = errors.New("input exceeds maximum size")
	ErrNullByteDetected  = errors.New("null byte detected in input")
	ErrControlCharacter  = errors.New("control character in input")
	ErrInvalidEncoding   = errors.New("input is not valid UTF-8")
	ErrRepetitiveContent = errors.New("excessive repetition detected")
)

type InputValidator struct {
	MaxRunes      int
	MaxRepetition int
}

// NewInputValidator returns the limits used for user and patient names
func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxRunes:      100,
		MaxRepetition: 20,
	}
}

func (v *InputValidator) Validate(input string) error {
	if !utf8.ValidString(input) {
		return ErrInvalidEncoding
	}
	if v.MaxRunes > 0 && utf8.RuneCountInString(input) > v.MaxRunes {
		return ErrInputTooLarge
	}

	for _, r := range input {
		if r == 0 {
			return ErrNullByteDetected
		}
		if unicode.IsControl(r) {
			return ErrControlCharacter
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) < maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}

func ValidateName(name string) error {
	return NewInputValidator().Validate(name)
}
