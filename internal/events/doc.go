// Package events carries SubscriptionCreated from the API to the delivery
// workers over a Redis stream.
//
// The stream key is the application-scoped subject. Workers read through a
// consumer group, so each entry is handed to one consumer of the group.
// An entry is acknowledged only after its handler returns nil; entries left
// pending by a failed handler or a crashed consumer are reclaimed with
// XAUTOCLAIM once they have been idle for the configured claim timeout.
// Delivery is therefore at-least-once.
package events
