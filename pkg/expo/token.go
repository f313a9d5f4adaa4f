// Package expo is a client for the Expo push notification service. It builds
// messages, validates recipient tokens, batches and sends them, and reconciles the
// returned tickets with the tokens they were sent to.
package expo

import "strings"

const minTokenLength = 15

var tokenPrefixes = []string{"ExponentPushToken[", "ExpoPushToken["}

// IsValidToken reports whether v is a string shaped like an Expo push token.
func IsValidToken(v any) bool {
	s, ok := v.(string)
	if !ok || len(s) < minTokenLength || !strings.HasSuffix(s, "]") {
		return false
	}
	for _, p := range tokenPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ValidateTokens accepts a single token string or a list ([]string or []any) and
// returns the valid tokens in input order. Invalid entries are dropped silently.
//
// It fails with ErrInvalidTokenInput when input is not a string or list, and with
// ErrNoValidTokens when nothing valid remains.
func ValidateTokens(input any) ([]string, error) {
	var candidates []any
	switch v := input.(type) {
	case string:
		candidates = []any{v}
	case []string:
		candidates = make([]any, len(v))
		for i, s := range v {
			candidates[i] = s
		}
	case []any:
		candidates = v
	default:
		return nil, ErrInvalidTokenInput
	}

	valid := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if IsValidToken(c) {
			valid = append(valid, c.(string))
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoValidTokens
	}
	return valid, nil
}
