package observer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/logger"
)

// FSNotifySubscriber implements Subscriber with fsnotify. fsnotify watches
// single directories, so the subscriber adds one watch per directory and
// follows directories created later. Filtered directories are never watched.
type FSNotifySubscriber struct {
	filter *Filter
	logger logger.Logger
}

// NewFSNotifySubscriber creates a subscriber that skips directories rejected by filter.
func NewFSNotifySubscriber(filter *Filter, log logger.Logger) *FSNotifySubscriber {
	if filter == nil {
		filter = &Filter{metadataDir: DefaultMetadataDir}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FSNotifySubscriber{filter: filter, logger: log}
}

// Subscribe implements Subscriber.
func (s *FSNotifySubscriber) Subscribe(root string) (Subscription, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sub := &fsSubscription{
		root:    root,
		watcher: watcher,
		filter:  s.filter,
		logger:  s.logger,
		events:  make(chan RawEvent),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}

	if err := sub.addTree(root); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	sub.wg.Add(1)
	go sub.run()
	return sub, nil
}

type fsSubscription struct {
	root    string
	watcher *fsnotify.Watcher
	filter  *Filter
	logger  logger.Logger

	events chan RawEvent
	errors chan error
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

func (s *fsSubscription) Events() <-chan RawEvent { return s.events }
func (s *fsSubscription) Errors() <-chan error    { return s.errors }

// Close stops delivery and releases the inotify/kqueue handle.
func (s *fsSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

func (s *fsSubscription) run() {
	defer s.wg.Done()
	defer close(s.events)
	defer close(s.errors)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			kind := kindOf(event.Op)
			if kind == 0 {
				continue
			}
			if kind == Created {
				s.followDirectory(event.Name)
			}
			select {
			case s.events <- RawEvent{Path: event.Name, Kind: kind}:
			case <-s.done:
				return
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- translateError(err):
			case <-s.done:
				return
			}

		case <-s.done:
			return
		}
	}
}

// translateError reports a kernel queue overflow as ErrObserverOverflow so
// the observer can schedule a full recheck.
func translateError(err error) error {
	if gitwatchErrors.Is(err, fsnotify.ErrEventOverflow) {
		return gitwatchErrors.Wrap(gitwatchErrors.ErrObserverOverflow, err.Error())
	}
	return err
}

// followDirectory starts watching a newly created directory tree.
func (s *fsSubscription) followDirectory(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := s.addTree(path); err != nil {
		s.logger.Warning("Failed to watch new directory %s: %v", path, err)
	}
}

// addTree adds a watch for dir and every directory below it that the filter accepts.
func (s *fsSubscription) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Vanished or unreadable subtrees are skipped; only the root is mandatory.
			if path == s.root {
				return err
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(s.root, path); relErr == nil && s.filter.Ignored(rel) {
			return filepath.SkipDir
		}
		if err := s.watcher.Add(path); err != nil {
			if path == s.root {
				return err
			}
			s.logger.Warning("Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

// kindOf maps an fsnotify op to a Kind. Removal wins over rename, rename over
// creation; writes and permission changes are modifications.
func kindOf(op fsnotify.Op) Kind {
	switch {
	case op.Has(fsnotify.Remove):
		return Removed
	case op.Has(fsnotify.Rename):
		return Renamed
	case op.Has(fsnotify.Create):
		return Created
	case op.Has(fsnotify.Write), op.Has(fsnotify.Chmod):
		return Modified
	default:
		return 0
	}
}
