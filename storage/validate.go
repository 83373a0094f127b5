package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	hashPattern    = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)
)

// ValidationError reports a boundary input that failed shape checks.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// NormalizeAddress lowercases an address and validates its shape.
func NormalizeAddress(field, value string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if !addressPattern.MatchString(v) {
		return "", &ValidationError{Field: field, Value: value}
	}
	return v, nil
}

// NormalizeAddresses normalizes a batch, failing on the first bad entry.
func NormalizeAddresses(field string, values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		normalized, err := NormalizeAddress(field, v)
		if err != nil {
			return nil, err
		}
		out[i] = normalized
	}
	return out, nil
}

// NormalizeHash lowercases a 32-byte hash and validates its shape.
func NormalizeHash(field, value string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if !hashPattern.MatchString(v) {
		return "", &ValidationError{Field: field, Value: value}
	}
	return v, nil
}

// normalizeNumeric validates a non-negative decimal string, defaulting
// empty input to zero. Values are stored as NUMERIC to keep 256-bit
// precision.
func normalizeNumeric(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "0", nil
	}
	if !numericPattern.MatchString(v) {
		return "", &ValidationError{Field: field, Value: value}
	}
	return v, nil
}

// isUniqueViolation reports whether err is a postgres duplicate-key error.
// Ledger inserts racing their own replays swallow these.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
