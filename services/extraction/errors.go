package extraction

import (
	"context"
	"errors"
	"fmt"

	"hwscraper-backend/lib/scrapers/autherr"
	"hwscraper-backend/lib/scrapers/browserlogin"
	"hwscraper-backend/lib/tableparse"
)

// FailureKind sorts run failures into actionable buckets: only
// credential kinds need the user, the rest need an operator or a
// selector update.
type FailureKind string

const (
	// FailureCredentialsMissing means the run never touched the
	// network: no usable credentials were on file.
	FailureCredentialsMissing FailureKind = "credentials_missing"
	// FailureCredentialsRejected covers explicit portal rejections and
	// logins that silently never reached an authenticated state.
	FailureCredentialsRejected FailureKind = "credentials_rejected"
	// FailureFormNotFound means the login markup has drifted from the
	// configured selectors.
	FailureFormNotFound FailureKind = "form_not_found"
	// FailureStructure means a page was fetched but its expected
	// markup is gone, likely a portal redesign.
	FailureStructure FailureKind = "structure"
	// FailureTransport is everything network-shaped.
	FailureTransport FailureKind = "transport"
)

// RunError is the terminal error of a run, carrying its classification.
type RunError struct {
	Kind FailureKind
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Classify maps an error from the scraping stack onto a failure kind.
// Unknown errors default to transport, the retryable bucket.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, autherr.ErrBadCredentials),
		errors.Is(err, browserlogin.ErrNotLoggedIn):
		return FailureCredentialsRejected
	case errors.Is(err, autherr.ErrFormNotFound):
		return FailureFormNotFound
	case errors.Is(err, tableparse.ErrTableNotFound):
		return FailureStructure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureTransport
	default:
		return FailureTransport
	}
}
