// Package pipeline wires the change observer to the commit coordinator.
//
// The observer's filtered event stream is the only channel between the two
// stages. It is bounded, and the observer blocks on it rather than dropping
// events, so a slow git never loses a change notification.
package pipeline
