package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"strings"

	"expense-api/internal/apperrors"
)

// Fields is a decoded JSON object whose keys are checked against an
// allow-list before any value is interpreted.
type Fields map[string]json.RawMessage

var errInvalidUpdates = apperrors.Validationf("Invalid updates!")

// checkAllowed rejects fields containing any key outside allowed.
func checkAllowed(fields Fields, allowed ...string) error {
	for key := range fields {
		ok := false
		for _, a := range allowed {
			if key == a {
				ok = true
				break
			}
		}
		if !ok {
			return errInvalidUpdates
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(fields Fields, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	var s string
	if isNull(raw) || json.Unmarshal(raw, &s) != nil {
		return nil, apperrors.Validationf("%s must be a string", key)
	}
	return &s, nil
}

// decodeNumber returns the number under key. present is false when the key
// is missing; a JSON null yields present with a nil value.
func decodeNumber(fields Fields, key string) (value *float64, present bool, err error) {
	raw, ok := fields[key]
	if !ok {
		return nil, false, nil
	}
	if isNull(raw) {
		return nil, true, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, true, apperrors.Validationf("%s must be a number", key)
	}
	return &f, true, nil
}

// normalizeEmail trims and lowercases email and checks it is a bare
// address with a dotted domain.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.Validationf("Email is invalid")
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", apperrors.Validationf("Email is invalid")
	}
	return email, nil
}

func requireNonEmpty(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.Validationf("%s is required", field)
	}
	return value, nil
}

func wrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.KindOf(err) == apperrors.KindStore {
		return fmt.Errorf("%s: %w", op, err)
	}
	return err
}
