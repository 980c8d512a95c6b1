// Package observer turns filesystem notifications under a watched root into
// a clean stream of change events.
//
// The Observer is a stateless translator: it converts raw notifications to
// root-relative Events, drops everything under the version-control metadata
// directory and any excluded path, and forwards the rest in delivery order
// without deduplication. Coalescing is the commit coordinator's job.
//
// The notification facility is abstracted as a Subscriber so the rest of
// the pipeline can be tested with a synthetic feed. FSNotifySubscriber is
// the production implementation.
//
// Delivery is blocking: when the consumer falls behind, the observer stops
// reading from the subscription and the platform queue absorbs the burst.
// If that queue overflows, ErrObserverOverflow is logged and a synthetic
// Modified event for "." is emitted so the working copy is re-checked.
package observer
