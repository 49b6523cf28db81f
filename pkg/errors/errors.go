package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrNotFound is returned when a resource is not found
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation is returned when validation fails
type ErrValidation struct {
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// ErrRemoteCall is a transport failure talking to Shopify (network error, timeout).
// The change it carried must never be treated as applied; retrying is safe.
type ErrRemoteCall struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *ErrRemoteCall) Error() string {
	return fmt.Sprintf("remote call %s %s failed: %v", e.Method, e.Endpoint, e.Err)
}

func (e *ErrRemoteCall) Unwrap() error { return e.Err }

// ErrRemoteCatalog is returned when the product list came back as an error envelope.
type ErrRemoteCatalog struct {
	Status int
	Body   string
}

func (e *ErrRemoteCatalog) Error() string {
	return fmt.Sprintf("remote catalog error (status %d): %s", e.Status, e.Body)
}

// ErrRemoteLevels is returned when the inventory levels came back as an error envelope.
type ErrRemoteLevels struct {
	Status int
	Body   string
}

func (e *ErrRemoteLevels) Error() string {
	return fmt.Sprintf("remote inventory levels error (status %d): %s", e.Status, e.Body)
}

// ErrWebhookList is returned when the subscription list could not be read.
type ErrWebhookList struct {
	Status int
	Body   string
}

func (e *ErrWebhookList) Error() string {
	return fmt.Sprintf("remote webhook list error (status %d): %s", e.Status, e.Body)
}

// ErrWebhookCreate is returned when the remote subscribe call did not return a webhook.
// The local registration is left as an orphan for the next reconciliation.
type ErrWebhookCreate struct {
	Topic  string
	Status int
	Body   string
}

func (e *ErrWebhookCreate) Error() string {
	return fmt.Sprintf("failed to create webhook for topic %s (status %d): %s", e.Topic, e.Status, e.Body)
}

// ErrSignatureRejected is returned for deliveries that fail authentication.
// It carries no detail about which check failed.
type ErrSignatureRejected struct{}

func (e *ErrSignatureRejected) Error() string {
	return "webhook signature rejected"
}

// ErrAmbiguousLevelMatch is returned when a webhook does not resolve to exactly one inventory level.
type ErrAmbiguousLevelMatch struct {
	InventoryItemID int64
	LocationID      int64
	Matches         int
}

func (e *ErrAmbiguousLevelMatch) Error() string {
	return fmt.Sprintf("inventory level match for item %d at location %d is ambiguous: %d matches",
		e.InventoryItemID, e.LocationID, e.Matches)
}

// IsNotFound reports whether err is (or wraps) an ErrNotFound
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return stderrors.As(err, &nf)
}

// IsRetryable reports whether the operation that produced err can be retried right away.
// Error envelopes are only retried on the next scheduled run.
func IsRetryable(err error) bool {
	var rc *ErrRemoteCall
	return stderrors.As(err, &rc)
}
