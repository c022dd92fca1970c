// Package service contains the business rules of the match and messaging
// engine.
//
// LAYERS:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services take repository interfaces, never *sqlite.DB, so tests can hand
// them in-memory fakes. They accept plain Go values, return apperror kinds
// for rule violations, and know nothing about HTTP.
package service

import "github.com/sakif/cofounder-match/internal/repository"

// Paging bounds shared by every list operation.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

func clampListOptions(limit, offset int) repository.ListOptions {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.ListOptions{Limit: limit, Offset: offset}
}
