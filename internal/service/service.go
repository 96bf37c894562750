// Package service contains the business rules of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)       → parses requests, writes responses
//	Service (this)       → validates, enforces rules, orchestrates
//	Repository (storage) → reads and writes users and articles
//
// Services take plain Go values (usernames, strings, ints) and return domain
// values or apperror errors. They know nothing about HTTP, cookies or status
// codes, so the same code serves the API and the `seed` command.
//
// DEPENDENCY INJECTION:
// Every service receives its collaborators as interfaces (a repository, a
// session.Store, an auth.Hasher, an upload.Uploader). The server wires real
// implementations; the tests wire in-memory fakes.
package service

import (
	"strings"

	"github.com/sakif/ricebook/internal/apperror"
)

// requireNonEmpty trims s and returns a validation error naming field when
// nothing is left.
func requireNonEmpty(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	return s, nil
}
