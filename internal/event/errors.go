package event

import "errors"

// ErrSubscriptionNotFound is returned when unsubscribing an unknown or
// already-removed subscription ID.
var ErrSubscriptionNotFound = errors.New("event: subscription not found")
