package observer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

func startFake(t *testing.T, opts Options) (*Observer, *fakeSubscriber, <-chan Event, string) {
	t.Helper()

	root := t.TempDir()
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	sub := newFakeSubscriber()
	obs, err := New(sub, opts, nil)
	require.NoError(t, err)

	out, err := obs.Start(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Close() })

	return obs, sub, out, resolved
}

func receive(t *testing.T, out <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-out:
		require.True(t, ok, "stream closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestObserverFiltersMetadataDirectory(t *testing.T) {
	_, sub, out, root := startFake(t, Options{})

	sub.sub.events <- RawEvent{Path: filepath.Join(root, ".git", "index.lock"), Kind: Created}
	sub.sub.events <- RawEvent{Path: filepath.Join(root, "a.txt"), Kind: Created}

	ev := receive(t, out)
	assert.Equal(t, "a.txt", ev.Path)
	assert.Equal(t, Created, ev.Kind)
}

func TestObserverPreservesOrderAndDuplicates(t *testing.T) {
	obs, sub, out, root := startFake(t, Options{Buffer: 8})

	raws := []RawEvent{
		{Path: filepath.Join(root, "a.txt"), Kind: Created},
		{Path: filepath.Join(root, "a.txt"), Kind: Modified},
		{Path: filepath.Join(root, "a.txt"), Kind: Modified},
		{Path: filepath.Join(root, "dir", "b.txt"), Kind: Removed},
		{Path: filepath.Join(root, "gone.txt"), Kind: Renamed},
	}
	for _, raw := range raws {
		sub.sub.events <- raw
	}

	want := []Event{
		{Path: "a.txt", Kind: Created},
		{Path: "a.txt", Kind: Modified},
		{Path: "a.txt", Kind: Modified},
		{Path: "dir/b.txt", Kind: Removed},
		{Path: "gone.txt", Kind: Renamed},
	}
	for _, w := range want {
		ev := receive(t, out)
		assert.Equal(t, w.Path, ev.Path)
		assert.Equal(t, w.Kind, ev.Kind)
	}
	assert.Equal(t, uint64(len(want)), obs.Delivered())
}

func TestObserverDropsPathsOutsideRoot(t *testing.T) {
	obs, sub, out, root := startFake(t, Options{})

	sub.sub.events <- RawEvent{Path: filepath.Join(filepath.Dir(root), "elsewhere.txt"), Kind: Modified}
	sub.sub.events <- RawEvent{Path: filepath.Join(root, "inside.txt"), Kind: Modified}

	assert.Equal(t, "inside.txt", receive(t, out).Path)
	assert.Equal(t, uint64(1), obs.Dropped())
}

func TestObserverStampsEventsWithClock(t *testing.T) {
	mock := clock.NewMock()
	mock.Add(time.Hour)

	_, sub, out, root := startFake(t, Options{Clock: mock})
	sub.sub.events <- RawEvent{Path: filepath.Join(root, "a.txt"), Kind: Modified}

	assert.Equal(t, mock.Now(), receive(t, out).Time)
}

func TestObserverOverflowIsReportedAndTriggersRecheck(t *testing.T) {
	obs, sub, out, _ := startFake(t, Options{})

	sub.sub.errors <- gitwatchErrors.Wrap(gitwatchErrors.ErrObserverOverflow, "queue full")

	ev := receive(t, out)
	assert.Equal(t, ".", ev.Path)
	assert.Equal(t, Modified, ev.Kind)
	assert.Equal(t, uint64(1), obs.Overflows())
}

func TestObserverNonOverflowErrorsAreLoggedOnly(t *testing.T) {
	obs, sub, out, root := startFake(t, Options{})

	sub.sub.errors <- errors.New("transient")
	sub.sub.events <- RawEvent{Path: filepath.Join(root, "a.txt"), Kind: Modified}

	assert.Equal(t, "a.txt", receive(t, out).Path)
	assert.Zero(t, obs.Overflows())
}

func TestObserverBlocksWhenConsumerIsSlow(t *testing.T) {
	_, sub, out, root := startFake(t, Options{Buffer: 1})

	sub.sub.events <- RawEvent{Path: filepath.Join(root, "1"), Kind: Modified} // buffered
	sub.sub.events <- RawEvent{Path: filepath.Join(root, "2"), Kind: Modified} // held by the delivery loop

	blocked := make(chan struct{})
	go func() {
		sub.sub.events <- RawEvent{Path: filepath.Join(root, "3"), Kind: Modified}
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("raw delivery should block while the output channel is full")
	case <-time.After(50 * time.Millisecond):
	}

	for _, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, receive(t, out).Path)
	}
	<-blocked
}

func TestObserverStartErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := map[string]struct {
		root   string
		subErr error
	}{
		"missing root":       {root: filepath.Join(t.TempDir(), "missing")},
		"not a directory":    {root: file},
		"subscription fails": {root: t.TempDir(), subErr: errors.New("too many open files")},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			sub := newFakeSubscriber()
			sub.err = tc.subErr
			obs, err := New(sub, Options{}, nil)
			require.NoError(t, err)

			_, err = obs.Start(context.Background(), tc.root)
			require.Error(t, err)
			assert.ErrorIs(t, err, gitwatchErrors.ErrObserverInit)

			var obsErr *gitwatchErrors.ObserverError
			assert.True(t, gitwatchErrors.As(err, &obsErr))
		})
	}
}

func TestObserverStartTwice(t *testing.T) {
	obs, _, _, root := startFake(t, Options{})

	_, err := obs.Start(context.Background(), root)
	assert.ErrorIs(t, err, gitwatchErrors.ErrObserverInit)
}

func TestObserverCloseReleasesSubscriptionOnce(t *testing.T) {
	obs, sub, out, root := startFake(t, Options{})
	assert.Equal(t, root, obs.Root())
	assert.Equal(t, root, sub.root)

	require.NoError(t, obs.Close())
	require.NoError(t, obs.Close())
	assert.Equal(t, 1, sub.sub.closeCount())

	_, ok := <-out
	assert.False(t, ok, "stream must be closed after Close")
}

func TestObserverStopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	sub := newFakeSubscriber()
	obs, err := New(sub, Options{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out, err := obs.Start(ctx, root)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancellation")
	}
	require.NoError(t, obs.Close())
}

func TestNewRejectsInvalidExclude(t *testing.T) {
	_, err := New(newFakeSubscriber(), Options{Exclude: []string{"[bad"}}, nil)
	assert.ErrorIs(t, err, gitwatchErrors.ErrInvalidConfiguration)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "removed", Removed.String())
	assert.Equal(t, "renamed", Renamed.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
