package watchlist

import "stockwatch/internal/models"

// State is the lifecycle tag of a record held by the Store.
//
// Only Dirty and Saving carry a baseline, so a rollback can never target a
// record that was not confirmed by the data source at least once.
type State interface {
	Name() string
	// Pending reports whether local user-owned fields must survive a refresh.
	Pending() bool
	state()
}

// Draft is a record inserted optimistically while its create call is in flight.
type Draft struct{}

// Synced is a record whose user-owned fields match the data source.
type Synced struct{}

// Dirty is a record with local edits that have not been saved.
type Dirty struct {
	// Baseline holds the last user-owned fields confirmed by the data source.
	Baseline models.PlanFields
}

// Saving is a record whose update call is in flight.
type Saving struct {
	Baseline models.PlanFields
	// Version is the record version the in-flight update was issued for.
	Version uint64
}

func (Draft) Name() string  { return "draft" }
func (Synced) Name() string { return "synced" }
func (Dirty) Name() string  { return "dirty" }
func (Saving) Name() string { return "saving" }

func (Draft) Pending() bool  { return true }
func (Synced) Pending() bool { return false }
func (Dirty) Pending() bool  { return true }
func (Saving) Pending() bool { return true }

func (Draft) state()  {}
func (Synced) state() {}
func (Dirty) state()  {}
func (Saving) state() {}

// Entry is a read-only view of one record and its state.
type Entry struct {
	Record models.PlanRecord
	State  State
}

// Unsaved reports whether the entry holds edits the data source has not confirmed.
// A record rolled back to its baseline after a failed save has none.
func (e Entry) Unsaved() bool {
	switch st := e.State.(type) {
	case Dirty:
		return e.Record.Fields() != st.Baseline
	case Saving:
		return true
	}
	return false
}
