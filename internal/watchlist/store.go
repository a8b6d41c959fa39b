// Package watchlist holds the ordered, optimistically updated list of plan records.
package watchlist

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"stockwatch/internal/datasource"
	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
)

// RefreshToken marks the store clock at the moment a snapshot fetch began.
type RefreshToken uint64

// ChangeFunc receives the ordered records after every mutation.
type ChangeFunc func(seq uint64, records []models.PlanRecord)

// CreatedFunc receives a record right after its create call was confirmed.
type CreatedFunc func(record models.PlanRecord)

type entry struct {
	record models.PlanRecord
	state  State
	// version is bumped on every local edit.
	version uint64
	// confirmedAt is the store clock when the data source last confirmed the record.
	confirmedAt uint64
}

// Store is the in-memory watchlist. Records are kept newest first.
// All methods are safe for concurrent use; data source calls run without the lock held.
type Store struct {
	source datasource.Source
	logger zerolog.Logger

	mu         sync.Mutex
	entries    []*entry
	clock      uint64
	seq        uint64
	removing   map[string]bool
	tombstones map[string]uint64
	onChange   []ChangeFunc
	onCreated  []CreatedFunc
}

// NewStore creates an empty store backed by source.
func NewStore(source datasource.Source, logger zerolog.Logger) *Store {
	return &Store{
		source:     source,
		logger:     logging.WithComponent(logger, "watchlist"),
		removing:   make(map[string]bool),
		tombstones: make(map[string]uint64),
	}
}

// OnChange registers a hook fired after every mutation.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnCreated registers a hook fired after every confirmed add.
func (s *Store) OnCreated(fn CreatedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCreated = append(s.onCreated, fn)
}

// Add inserts a draft for code at the head and asks the data source to create it.
func (s *Store) Add(ctx context.Context, code string) (models.PlanRecord, error) {
	normalized, err := models.NormalizeCode(code)
	if err != nil {
		return models.PlanRecord{}, errors.NewValidationError("code", code, err.Error())
	}

	draft := models.CreateDraft(normalized)

	s.mu.Lock()
	s.entries = append([]*entry{{record: draft, state: Draft{}}}, s.entries...)
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()

	created, err := s.source.Create(ctx, draft)

	s.mu.Lock()
	if err != nil {
		if idx := s.indexLocked(draft.ID); idx >= 0 {
			s.removeAtLocked(idx)
		}
		notify = s.changedLocked()
		s.mu.Unlock()
		notify()

		logging.LogMutation(s.logger, string(errors.OpCreate), "", normalized, err)
		return models.PlanRecord{}, errors.NewMutationError(errors.OpCreate, "", normalized, err)
	}

	if created.InstrumentCode == "" {
		created.InstrumentCode = normalized
	}
	if created.Symbol == "" {
		created.Symbol = models.SymbolOf(created.InstrumentCode)
	}
	created = created.WithServerFields(created) // clamps negative prices

	confirmedAt := s.tickLocked()
	delete(s.tombstones, created.ID)

	draftIdx := s.indexLocked(draft.ID)
	result := created
	if existing := s.indexLocked(created.ID); existing >= 0 {
		// The data source re-activated a record we already hold.
		if draftIdx >= 0 {
			s.removeAtLocked(draftIdx)
			existing = s.indexLocked(created.ID)
		}
		e := s.entries[existing]
		e.record = models.MergeServerSnapshot(e.record, created, e.state.Pending())
		e.confirmedAt = confirmedAt
		result = e.record
	} else {
		e := &entry{record: created, state: Synced{}, confirmedAt: confirmedAt}
		if draftIdx >= 0 {
			s.entries[draftIdx] = e
		} else {
			s.entries = append([]*entry{e}, s.entries...)
		}
	}

	hooks := append([]CreatedFunc(nil), s.onCreated...)
	notify = s.changedLocked()
	s.mu.Unlock()
	notify()

	logging.LogMutation(s.logger, string(errors.OpCreate), result.ID, result.InstrumentCode, nil)
	for _, fn := range hooks {
		fn(result)
	}
	return result, nil
}

// Edit applies patch to the user-owned fields of a confirmed record.
func (s *Store) Edit(id string, patch models.PlanPatch) (models.PlanRecord, error) {
	s.mu.Lock()
	e := s.findLocked(id)
	if e == nil {
		s.mu.Unlock()
		return models.PlanRecord{}, errors.ErrRecordNotFound
	}
	if _, ok := e.state.(Draft); ok {
		s.mu.Unlock()
		return models.PlanRecord{}, errors.ErrRecordPending
	}
	if patch.IsEmpty() {
		r := e.record
		s.mu.Unlock()
		return r, nil
	}

	fields := patch.Apply(e.record.Fields())
	if !fields.Strategy.Valid() {
		s.mu.Unlock()
		return models.PlanRecord{}, errors.NewValidationError("strategy", fields.Strategy, "unknown strategy")
	}
	if fields.Conviction < models.MinConviction || fields.Conviction > models.MaxConviction {
		s.mu.Unlock()
		return models.PlanRecord{}, errors.NewValidationError("conviction", fields.Conviction, "must be between 1 and 5")
	}

	switch st := e.state.(type) {
	case Synced:
		e.state = Dirty{Baseline: e.record.Fields()}
	case Dirty:
		if fields == st.Baseline {
			e.state = Synced{}
		}
	}
	e.record = e.record.WithFields(fields)
	e.version++
	r := e.record
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()
	return r, nil
}

// Revert discards unsaved edits of a dirty record.
func (s *Store) Revert(id string) (models.PlanRecord, error) {
	s.mu.Lock()
	e := s.findLocked(id)
	if e == nil {
		s.mu.Unlock()
		return models.PlanRecord{}, errors.ErrRecordNotFound
	}

	switch st := e.state.(type) {
	case Draft:
		s.mu.Unlock()
		return models.PlanRecord{}, errors.ErrRecordPending
	case Saving:
		s.mu.Unlock()
		return models.PlanRecord{}, errors.ErrSaveInFlight
	case Synced:
		r := e.record
		s.mu.Unlock()
		return r, nil
	case Dirty:
		e.record = e.record.WithFields(st.Baseline)
		e.state = Synced{}
		e.version++
	}

	r := e.record
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()
	return r, nil
}

// Save sends the user-owned fields of a dirty record to the data source.
// Edits made while the save is in flight win over its outcome.
func (s *Store) Save(ctx context.Context, id string) (models.PlanRecord, error) {
	s.mu.Lock()
	e := s.findLocked(id)
	if e == nil {
		s.mu.Unlock()
		return models.PlanRecord{}, errors.ErrRecordNotFound
	}

	var saving Saving
	switch st := e.state.(type) {
	case Draft:
		s.mu.Unlock()
		return models.PlanRecord{}, errors.ErrRecordPending
	case Saving:
		s.mu.Unlock()
		return models.PlanRecord{}, errors.ErrSaveInFlight
	case Synced:
		r := e.record
		s.mu.Unlock()
		return r, nil
	case Dirty:
		saving = Saving{Baseline: st.Baseline, Version: e.version}
	}
	e.state = saving
	fields := e.record.Fields()
	code := e.record.InstrumentCode
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()

	confirmed, err := s.source.Update(ctx, id, fields)

	s.mu.Lock()
	e = s.findLocked(id)
	if e == nil {
		s.mu.Unlock()
		if err != nil {
			return models.PlanRecord{}, errors.NewMutationError(errors.OpUpdate, id, code, err)
		}
		return models.PlanRecord{}, errors.ErrRecordNotFound
	}
	newer := e.version != saving.Version

	if err != nil {
		if newer {
			e.state = Dirty{Baseline: saving.Baseline}
			l := logging.WithRecord(s.logger, id)
			l.Warn().Err(err).Msg("Save failed, newer edit kept")
		} else {
			e.record = e.record.WithFields(saving.Baseline)
			e.state = Dirty{Baseline: saving.Baseline}
			l := logging.WithRecord(s.logger, id)
			l.Warn().Err(err).Msg("Save failed, rolled back to baseline")
		}
		notify = s.changedLocked()
		s.mu.Unlock()
		notify()

		logging.LogMutation(s.logger, string(errors.OpUpdate), id, code, err)
		return models.PlanRecord{}, errors.NewMutationError(errors.OpUpdate, id, code, err)
	}

	baseline := confirmed.Fields()
	if !baseline.Strategy.Valid() || baseline.Conviction < models.MinConviction || baseline.Conviction > models.MaxConviction {
		baseline = fields
	}
	e.record = e.record.WithServerFields(confirmed)
	if newer {
		e.state = Dirty{Baseline: baseline}
	} else {
		e.record = e.record.WithFields(baseline)
		e.state = Synced{}
	}
	e.confirmedAt = s.tickLocked()
	r := e.record
	notify = s.changedLocked()
	s.mu.Unlock()
	notify()

	logging.LogMutation(s.logger, string(errors.OpUpdate), id, code, nil)
	return r, nil
}

// Remove drops a record immediately and asks the data source to delete it.
// On failure the record is put back where it was.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return errors.ErrRecordNotFound
	}
	e := s.entries[idx]
	switch e.state.(type) {
	case Draft:
		s.mu.Unlock()
		return errors.ErrRecordPending
	case Saving:
		s.mu.Unlock()
		return errors.ErrSaveInFlight
	}
	s.removeAtLocked(idx)
	s.removing[id] = true
	s.tombstones[id] = s.tickLocked()
	notify := s.changedLocked()
	s.mu.Unlock()
	notify()

	err := s.source.Remove(ctx, id)
	if errors.Is(err, datasource.ErrNotFound) {
		err = nil
	}

	s.mu.Lock()
	delete(s.removing, id)
	if err != nil {
		delete(s.tombstones, id)
		if s.indexLocked(id) < 0 {
			if idx > len(s.entries) {
				idx = len(s.entries)
			}
			s.entries = append(s.entries, nil)
			copy(s.entries[idx+1:], s.entries[idx:])
			s.entries[idx] = e
		}
		notify = s.changedLocked()
		s.mu.Unlock()
		notify()

		logging.LogMutation(s.logger, string(errors.OpDelete), id, e.record.InstrumentCode, err)
		return errors.NewMutationError(errors.OpDelete, id, e.record.InstrumentCode, err)
	}
	s.tombstones[id] = s.tickLocked()
	s.mu.Unlock()

	logging.LogMutation(s.logger, string(errors.OpDelete), id, e.record.InstrumentCode, nil)
	return nil
}

// BeginRefresh must be called right before a snapshot fetch starts.
func (s *Store) BeginRefresh() RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RefreshToken(s.clock)
}

// ApplySnapshot merges a snapshot fetched after BeginRefresh returned token.
// Existing order is preserved and unknown records are appended at the tail.
func (s *Store) ApplySnapshot(token RefreshToken, records []models.PlanRecord) {
	s.mu.Lock()

	byID := make(map[string]*entry, len(s.entries))
	drafting := make(map[string]bool)
	for _, e := range s.entries {
		if _, ok := e.state.(Draft); ok {
			drafting[strings.ToUpper(e.record.InstrumentCode)] = true
			continue
		}
		byID[e.record.ID] = e
	}

	seen := make(map[string]bool, len(records))
	var appended int
	for _, srv := range records {
		if srv.ID == "" || seen[srv.ID] {
			continue
		}
		seen[srv.ID] = true

		if e, ok := byID[srv.ID]; ok {
			// A record confirmed after the fetch began must not lose that confirmation.
			pending := e.state.Pending() || e.confirmedAt > uint64(token)
			e.record = models.MergeServerSnapshot(e.record, srv, pending)
			continue
		}
		if s.removing[srv.ID] || s.tombstones[srv.ID] > uint64(token) {
			continue
		}
		// The create for this code is still in flight. Add puts the record in the draft's row.
		if drafting[strings.ToUpper(srv.InstrumentCode)] {
			continue
		}

		if srv.Symbol == "" {
			srv.Symbol = models.SymbolOf(srv.InstrumentCode)
		}
		s.entries = append(s.entries, &entry{
			record:      srv.WithServerFields(srv),
			state:       Synced{},
			confirmedAt: uint64(token),
		})
		appended++
	}

	kept := s.entries[:0]
	var dropped int
	for _, e := range s.entries {
		if _, ok := e.state.(Synced); ok && !seen[e.record.ID] && e.confirmedAt <= uint64(token) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept

	for id, at := range s.tombstones {
		if at <= uint64(token) {
			delete(s.tombstones, id)
		}
	}

	notify := s.changedLocked()
	size := len(s.entries)
	s.mu.Unlock()
	notify()

	s.logger.Debug().
		Int("snapshot", len(records)).
		Int("appended", appended).
		Int("dropped", dropped).
		Int("size", size).
		Msg("Snapshot merged")
}

// Records returns a copy of the ordered records.
func (s *Store) Records() []models.PlanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsLocked()
}

// Entries returns the ordered records together with their states.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = Entry{Record: e.record, State: e.state}
	}
	return out
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.findLocked(id); e != nil {
		return Entry{Record: e.record, State: e.state}, true
	}
	return Entry{}, false
}

// At returns the record at a 1-based row.
func (s *Store) At(row int) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row < 1 || row > len(s.entries) {
		return Entry{}, false
	}
	e := s.entries[row-1]
	return Entry{Record: e.record, State: e.state}, true
}

// Resolve finds a record by 1-based row number, id or instrument code.
func (s *Store) Resolve(ref string) (Entry, bool) {
	ref = strings.TrimSpace(ref)
	if row, err := strconv.Atoi(ref); err == nil {
		if entry, ok := s.At(row); ok {
			return entry, true
		}
	}
	if entry, ok := s.Get(ref); ok {
		return entry, true
	}

	code, err := models.NormalizeCode(ref)
	if err != nil {
		return Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.record.InstrumentCode == code {
			return Entry{Record: e.record, State: e.state}, true
		}
	}
	return Entry{}, false
}

// State returns the lifecycle state of a record.
func (s *Store) State(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.findLocked(id); e != nil {
		return e.state, true
	}
	return nil, false
}

// Len returns the number of records, drafts included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Search looks up instruments. Keywords shorter than two characters return nothing.
func (s *Store) Search(ctx context.Context, keyword string) ([]models.SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if utf8.RuneCountInString(keyword) < datasource.MinSearchLength {
		return nil, nil
	}
	results, err := s.source.Search(ctx, keyword)
	if err != nil {
		return nil, errors.Wrap(err, "search failed")
	}
	if len(results) > datasource.MaxSearchResults {
		results = results[:datasource.MaxSearchResults]
	}
	return results, nil
}

func (s *Store) findLocked(id string) *entry {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.entries[idx]
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i, e := range s.entries {
		if e.record.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeAtLocked(idx int) {
	copy(s.entries[idx:], s.entries[idx+1:])
	s.entries[len(s.entries)-1] = nil
	s.entries = s.entries[:len(s.entries)-1]
}

func (s *Store) tickLocked() uint64 {
	s.clock++
	return s.clock
}

func (s *Store) recordsLocked() []models.PlanRecord {
	out := make([]models.PlanRecord, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.record
	}
	return out
}

// changedLocked bumps the change sequence and returns a func that runs the
// change hooks. It must be called after the lock is released.
func (s *Store) changedLocked() func() {
	if len(s.onChange) == 0 {
		return func() {}
	}
	s.seq++
	seq := s.seq
	records := s.recordsLocked()
	hooks := append([]ChangeFunc(nil), s.onChange...)
	return func() {
		for _, fn := range hooks {
			fn(seq, records)
		}
	}
}
