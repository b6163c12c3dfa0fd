package sop

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/ppiankov/triagewatch/internal/model"
)

// snapshot is an immutable, indexed set of procedures.
type snapshot struct {
	records []model.ProcedureRecord
	version uint64
}

// Library is an in-memory Repository. Readers always observe a complete
// snapshot; Replace swaps in a new one atomically.
type Library struct {
	current atomic.Pointer[snapshot]
}

// NewLibrary creates a library holding the given records.
// Invalid records are dropped; see Replace.
func NewLibrary(records []model.ProcedureRecord) *Library {
	l := &Library{}
	l.Replace(records)
	return l
}

// Replace indexes records and publishes them as the new snapshot.
// It returns the records rejected as malformed.
func (l *Library) Replace(records []model.ProcedureRecord) []error {
	var errs []error
	indexed := make([]model.ProcedureRecord, 0, len(records))
	for _, r := range records {
		r = r.Indexed()
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		indexed = append(indexed, r)
	}

	var version uint64 = 1
	if old := l.current.Load(); old != nil {
		version = old.version + 1
	}
	l.current.Store(&snapshot{records: indexed, version: version})
	return errs
}

// Query returns the snapshot records, optionally filtered by category.
// The returned slice is a copy.
func (l *Library) Query(_ context.Context, _ []string, category string) ([]model.ProcedureRecord, error) {
	snap := l.current.Load()
	if snap == nil {
		return nil, nil
	}
	out := make([]model.ProcedureRecord, 0, len(snap.records))
	for _, r := range snap.records {
		if category != "" && !strings.EqualFold(r.Category, category) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Len returns the number of procedures in the current snapshot.
func (l *Library) Len() int {
	if snap := l.current.Load(); snap != nil {
		return len(snap.records)
	}
	return 0
}

// Version increments on every Replace.
func (l *Library) Version() uint64 {
	if snap := l.current.Load(); snap != nil {
		return snap.version
	}
	return 0
}
