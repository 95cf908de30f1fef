package storage

import "errors"

// ErrNotFound reports a missing row to callers outside pkg/storage (the
// server answers a 404 with it when GetTask finds nothing). The storage
// lookups themselves report absence with ok == false rather than
// returning it.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by CreateTask when unique_key already has an
// active (pending, running, or paused) task — the Task ↔ uniqueness
// invariant from the spec's data model.
var ErrConflict = errors.New("conflicting active task for unique key")
