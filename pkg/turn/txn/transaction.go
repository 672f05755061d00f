// Package txn provides a small snapshot/restore transaction used wherever
// local state is mutated optimistically ahead of a network call and must be
// restored if that call fails.
package txn

// Transaction captures a snapshot of some state before an optimistic
// mutation. Exactly one of Commit or Rollback should be called; whichever
// comes second is a no-op.
type Transaction[S any] struct {
	snapshot S
	restore  func(S)
	done     bool
}

// Begin records the snapshot and the function that can restore it.
func Begin[S any](snapshot S, restore func(S)) *Transaction[S] {
	return &Transaction[S]{snapshot: snapshot, restore: restore}
}

// Snapshot returns the state as captured at Begin time.
func (t *Transaction[S]) Snapshot() S {
	return t.snapshot
}

// Commit keeps the applied mutation. The snapshot is dropped.
func (t *Transaction[S]) Commit() {
	t.done = true
}

// Rollback restores the snapshot taken at Begin.
func (t *Transaction[S]) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.restore(t.snapshot)
}
