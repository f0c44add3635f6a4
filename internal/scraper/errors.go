package scraper

import "fmt"

// AuthError marks a terminal credential failure. Retrying with the same
// credentials cannot succeed, so the harvest stops instead of backing off.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// ParseError marks a single container or page that could not be turned into a
// valid record. Parse failures are counted and skipped, never fatal.
type ParseError struct {
	Page   int
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure on page %d: %s", e.Page, e.Detail)
}
