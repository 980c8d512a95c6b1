package observer

import (
	"errors"
	"sync"
)

// fakeSubscriber hands out a fakeSubscription whose raw feed the test drives.
type fakeSubscriber struct {
	err  error
	sub  *fakeSubscription
	root string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{sub: &fakeSubscription{
		events: make(chan RawEvent),
		errors: make(chan error),
	}}
}

func (f *fakeSubscriber) Subscribe(root string) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.root = root
	return f.sub, nil
}

type fakeSubscription struct {
	events chan RawEvent
	errors chan error

	mu     sync.Mutex
	closed int
}

func (s *fakeSubscription) Events() <-chan RawEvent { return s.events }
func (s *fakeSubscription) Errors() <-chan error    { return s.errors }

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	if s.closed > 1 {
		return errors.New("closed twice")
	}
	return nil
}

func (s *fakeSubscription) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
