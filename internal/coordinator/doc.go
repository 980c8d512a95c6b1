// Package coordinator decides when to commit.
//
// A Coordinator reads change events and moves through four states:
//
//	Idle ──event──▶ Accumulating ──quiet for Debounce──▶ Committing
//	  ▲                  ▲                                 │
//	  └── clean/success ─┴── success, new events arrived ──┤
//	                                                       ▼
//	                     Backoff ◀──────────────── git failed
//
// Every event pushes the commit deadline out to last event + Debounce, so a
// burst of edits becomes one commit. A commit attempt checks the working
// copy first and never creates an empty commit. Failures are retried after
// an exponentially growing delay (MinBackoff doubling up to MaxBackoff) that
// resets after the next successful attempt; pending changes are never
// dropped on failure.
//
// All timing goes through a clock.Clock, so tests drive the state machine
// with clock.NewMock and the OnIdle hook.
package coordinator
