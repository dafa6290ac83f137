// Package store holds the engine's in-memory copy of the clinic's patient
// and procedure records. It is the single mutable cache the views rebuild
// from; the upstream backend stays the source of truth.
package store

import (
	"sort"
	"sync"

	"github.com/livhair/schedule-engine/internal/schedule"
)

// Store caches patients and procedures by id. Removed ids are tombstoned so
// a single-record refresh that loses the race against a delete cannot revive
// the record; a full ReplaceAll clears the tombstones.
type Store struct {
	mu sync.RWMutex

	patients   map[int64]schedule.Patient
	procedures map[int64]schedule.Procedure

	deadPatients   map[int64]struct{}
	deadProcedures map[int64]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		patients:       make(map[int64]schedule.Patient),
		procedures:     make(map[int64]schedule.Procedure),
		deadPatients:   make(map[int64]struct{}),
		deadProcedures: make(map[int64]struct{}),
	}
}

// ReplaceAll swaps in a full snapshot and forgets all tombstones.
func (s *Store) ReplaceAll(patients []schedule.Patient, procedures []schedule.Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients = make(map[int64]schedule.Patient, len(patients))
	for _, p := range patients {
		if p.Deleted {
			continue
		}
		s.patients[p.ID] = p
	}
	s.procedures = make(map[int64]schedule.Procedure, len(procedures))
	for _, proc := range procedures {
		if proc.Deleted {
			continue
		}
		s.procedures[proc.ID] = proc
	}
	s.deadPatients = make(map[int64]struct{})
	s.deadProcedures = make(map[int64]struct{})
}

// UpsertPatient inserts or replaces one patient. Tombstoned and deleted
// records are dropped and the call reports false.
func (s *Store) UpsertPatient(p schedule.Patient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dead := s.deadPatients[p.ID]; dead || p.Deleted {
		return false
	}
	s.patients[p.ID] = p
	return true
}

// RemovePatient drops a patient, its procedures and tombstones all of them.
func (s *Store) RemovePatient(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patients, id)
	s.deadPatients[id] = struct{}{}
	for procID, proc := range s.procedures {
		if proc.PatientID == id {
			delete(s.procedures, procID)
			s.deadProcedures[procID] = struct{}{}
		}
	}
}

// UpsertProcedure inserts or replaces one procedure. Tombstoned and deleted
// records are dropped and the call reports false.
func (s *Store) UpsertProcedure(p schedule.Procedure) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dead := s.deadProcedures[p.ID]; dead || p.Deleted {
		return false
	}
	s.procedures[p.ID] = p
	return true
}

// RemoveProcedure drops a procedure and tombstones its id.
func (s *Store) RemoveProcedure(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procedures, id)
	s.deadProcedures[id] = struct{}{}
}

// Patient returns one patient by id.
func (s *Store) Patient(id int64) (schedule.Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	return p, ok
}

// Procedure returns one procedure by id.
func (s *Store) Procedure(id int64) (schedule.Procedure, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.procedures[id]
	return p, ok
}

// PatientsByID returns a copy of the patient index for normalization.
func (s *Store) PatientsByID() map[int64]schedule.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]schedule.Patient, len(s.patients))
	for id, p := range s.patients {
		out[id] = p
	}
	return out
}

// Patients returns all cached patients ordered by id.
func (s *Store) Patients() []schedule.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schedule.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Procedures returns all cached procedures in the backend's list order:
// dated records ascending by date then id, undated records last.
func (s *Store) Procedures() []schedule.Procedure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schedule.Procedure, 0, len(s.procedures))
	for _, p := range s.procedures {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := procedureKey(out[i]), procedureKey(out[j])
		if ki != kj {
			return ki < kj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UnscheduledPatients returns patients with no cached procedure, ordered by
// id. They feed the search pool but never the calendar.
func (s *Store) UnscheduledPatients() []schedule.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	booked := make(map[int64]struct{}, len(s.procedures))
	for _, p := range s.procedures {
		booked[p.PatientID] = struct{}{}
	}
	out := make([]schedule.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		if _, ok := booked[p.ID]; !ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts reports the cached record totals.
func (s *Store) Counts() (patients, procedures int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patients), len(s.procedures)
}

func procedureKey(p schedule.Procedure) int64 {
	t, ok := schedule.ParseISODate(p.ProcedureDate)
	if !ok {
		return schedule.UndatedSortKey
	}
	return schedule.SortKey(t)
}
