package txn

import "testing"

func TestCommitKeepsMutation(t *testing.T) {
	state := []int{1, 2, 3}
	tx := Begin(append([]int(nil), state...), func(prev []int) {
		state = prev
	})

	state = append(state, 4)
	tx.Commit()

	if len(state) != 4 {
		t.Errorf("state = %v, want the mutation kept", state)
	}

	// Rollback after commit is a no-op.
	tx.Rollback()
	if len(state) != 4 {
		t.Errorf("state = %v after rollback-after-commit, want unchanged", state)
	}
}

func TestRollbackRestoresSnapshot(t *testing.T) {
	state := map[string]bool{"a": false}
	tx := Begin(map[string]bool{"a": false}, func(prev map[string]bool) {
		state = prev
	})

	state["a"] = true
	tx.Rollback()

	if state["a"] {
		t.Error("rollback did not restore the snapshot")
	}

	// Second rollback must not restore twice.
	state["a"] = true
	tx.Rollback()
	if !state["a"] {
		t.Error("second rollback should be a no-op")
	}
}

func TestSnapshotIsBeginTimeState(t *testing.T) {
	tx := Begin("before", func(string) {})
	if tx.Snapshot() != "before" {
		t.Errorf("Snapshot() = %q, want %q", tx.Snapshot(), "before")
	}
}
