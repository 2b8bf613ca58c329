package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a library entry does not exist for (owner, key).
var ErrNotFound = errors.New("entry not found")

type FetchFailureReason string

const (
	FetchFailureNetwork FetchFailureReason = "network"
	FetchFailureStatus  FetchFailureReason = "status"
	FetchFailureTimeout FetchFailureReason = "timeout"
)

// FetchError is a transient per-source failure. It is never fatal: the
// scheduler retries the source on a later cycle with widened backoff.
type FetchError struct {
	SourceKey  string
	Reason     FetchFailureReason
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Reason == FetchFailureStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.SourceKey, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.SourceKey, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError marks a malformed payload for a known source kind. The source
// is counted failed for the cycle; nothing is silently defaulted.
type ParseError struct {
	SourceKey string
	Kind      SourceKind
	Detail    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s payload for %s: %s", e.Kind, e.SourceKey, e.Detail)
}

// ConfigError rejects an invalid source registry at load, before any
// scheduling begins.
type ConfigError struct {
	SourceKey string
	Detail    string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.SourceKey == "" {
		return fmt.Sprintf("source config: %s", e.Detail)
	}
	return fmt.Sprintf("source config %s: %s", e.SourceKey, e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError rejects a library entry that breaks an invariant before
// any write reaches the repository.
type ValidationError struct {
	Key    string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid entry: %s", e.Detail)
	}
	return fmt.Sprintf("invalid entry %s: %s", e.Key, e.Detail)
}

// ConflictError surfaces a duplicate key on a non-upsert insert path.
type ConflictError struct {
	Owner string
	Key   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry already exists: %s/%s", e.Owner, e.Key)
}

// NoDataError is returned when a recommendation or series query is made for
// a token with an empty price history. It is a distinct outcome, never a
// Hold with fabricated confidence.
type NoDataError struct {
	Token string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no price data for %s", e.Token)
}

func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}
