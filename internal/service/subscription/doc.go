// Package subscription implements the subscription lifecycle: registration,
// double opt-in confirmation and the compensation applied when a
// confirmation email cannot be delivered.
//
// The service depends on the Store and Publisher interfaces defined in
// repository.go. Every mutation of subscription or token rows happens inside
// a Store.InTx scope, which commits when the callback returns nil and rolls
// back otherwise.
//
// Registration commits the token before publishing SubscriptionCreated.
// The commit and the publish are not atomic: a crash between them leaves a
// Pending subscription with a valid token and no email sent, and nothing
// re-drives it. A publish failure is logged and returned as ErrPublish; the
// subscriber recovers by registering again, which issues a fresh token.
// Closing this gap needs a transactional outbox.
//
// Delivery is not retried. A single failed send marks the subscription
// Failed until the subscriber registers again.
package subscription
