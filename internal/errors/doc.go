// Package errors provides error handling utilities for the gitwatch application.
//
// It wraps the standard library errors package and defines the error
// taxonomy of the watch-and-commit pipeline:
//
//   - ErrObserverInit / ObserverError: fatal, the root cannot be watched
//   - ErrObserverOverflow: recoverable, notifications were lost
//   - ErrGatewayUnavailable: fatal at startup, recoverable mid-run
//   - ErrGatewayFailed / GitError: recoverable, triggers backoff
//   - ErrGatewayTimeout: a GitError whose command ran out of time
//
// # Usage
//
//	if err != nil {
//	    return errors.Wrap(err, "failed to stage changes")
//	}
//
//	if errors.Is(err, errors.ErrGatewayFailed) {
//	    // retry later
//	}
//
// All types and functions in this package are safe for concurrent use.
package errors
