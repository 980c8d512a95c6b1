package observer

import (
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultMetadataDir is the version-control metadata directory that is never surfaced.
	DefaultMetadataDir = ".git"

	// DefaultBuffer is the capacity of the observer's output channel.
	DefaultBuffer = 64
)

// Kind classifies a change notification.
type Kind uint8

const (
	// Created indicates a file or directory was created.
	Created Kind = iota + 1
	// Modified indicates contents or metadata changed.
	Modified
	// Removed indicates a file or directory was removed.
	Removed
	// Renamed indicates a file or directory was renamed away.
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is one filtered change under the watched root.
type Event struct {
	// Path is slash-separated and relative to the watched root ("." for the root itself).
	Path string
	Kind Kind
	Time time.Time
}

// RawEvent is a notification as delivered by a Subscriber, before filtering.
type RawEvent struct {
	// Path is absolute.
	Path string
	Kind Kind
}

// Subscription is one open handle to a notification facility.
type Subscription interface {
	// Events is closed when the subscription ends.
	Events() <-chan RawEvent
	Errors() <-chan error
	Close() error
}

// Subscriber installs recursive notifications for a directory tree.
type Subscriber interface {
	Subscribe(root string) (Subscription, error)
}

// Options controls observer behavior.
type Options struct {
	// MetadataDir is the top-level directory name whose events are dropped.
	MetadataDir string

	// Exclude holds glob patterns (gobwas/glob syntax, '/' separated).
	// A path is dropped when a pattern matches it or any of its components.
	Exclude []string

	// Buffer is the output channel capacity; delivery blocks when it is full.
	Buffer int

	// Clock stamps events. Defaults to the wall clock.
	Clock clock.Clock
}

func (o Options) withDefaults() Options {
	if o.MetadataDir == "" {
		o.MetadataDir = DefaultMetadataDir
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}
