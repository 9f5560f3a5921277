package triathlon

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Age and id limits for registration.
const (
	MinAge = 18
	MaxAge = 60

	minNationalIDLen = 5
	maxNationalIDLen = 8
	maxForeignIDLen  = 20
)

// Registration is the data entered for a new or edited participant.
type Registration struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Municipality string `json:"municipality"`
	Age          int    `json:"age"`
}

func (r *Registration) normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	r.Municipality = strings.TrimSpace(r.Municipality)
}

func (r Registration) validateFields() error {
	if r.ID == "" || r.Name == "" || r.Municipality == "" {
		return wrapValidation("id, name and municipality are required")
	}
	if r.Age < MinAge || r.Age > MaxAge {
		return wrapValidationf("age must be between %d and %d, got %d", MinAge, MaxAge, r.Age)
	}
	return nil
}

// validateNewID applies the registration id rules. An all-digit id is a
// national id: no leading zero and 5 to 8 digits. Anything else is a
// foreign id of at most 20 characters.
func validateNewID(id string) error {
	if isDigits(id) {
		if strings.HasPrefix(id, "0") {
			return wrapValidationf("id %q must not start with 0", id)
		}
		if len(id) < minNationalIDLen || len(id) > maxNationalIDLen {
			return wrapValidationf("id %q must have between %d and %d digits", id, minNationalIDLen, maxNationalIDLen)
		}
		return nil
	}
	if len(id) > maxForeignIDLen {
		return wrapValidationf("foreign id %q must not exceed %d characters", id, maxForeignIDLen)
	}
	return nil
}

// validateEditedID applies the looser rules of the edit form.
func validateEditedID(id string) error {
	if strings.HasPrefix(id, "0") {
		return wrapValidationf("id %q must not start with 0", id)
	}
	if len(id) > maxNationalIDLen {
		return wrapValidationf("id %q exceeds %d characters", id, maxNationalIDLen)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Participants returns every registered participant in registration order.
func (s *Simulation) Participants(ctx context.Context) ([]*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.LoadParticipants(ctx)
}

// RegisterParticipant validates r and appends a new participant with zeroed
// progress. New participants do not take part until selected.
func (s *Simulation) RegisterParticipant(ctx context.Context, r Registration) (*Participant, error) {
	r.normalize()
	if err := r.validateFields(); err != nil {
		return nil, err
	}
	if err := validateNewID(r.ID); err != nil {
		return nil, err
	}

	var created *Participant
	err := s.mutate(ctx, func(participants []*Participant) ([]*Participant, error) {
		if findParticipant(participants, r.ID) != nil {
			return nil, wrapValidationf("id %q is already registered", r.ID)
		}
		created = NewParticipant(r.ID, r.Name, r.Municipality, r.Age)
		return append(participants, created), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("participant registered", zap.String("participant", r.ID))
	return created.Clone(), nil
}

// UpdateParticipant replaces the identity and display fields of the
// participant registered as id. Race progress and the participation flag are
// kept. A successful update empties the pending-edit slot.
func (s *Simulation) UpdateParticipant(ctx context.Context, id string, r Registration) (*Participant, error) {
	r.normalize()
	if err := r.validateFields(); err != nil {
		return nil, err
	}
	if err := validateEditedID(r.ID); err != nil {
		return nil, err
	}

	var updated *Participant
	err := s.mutate(ctx, func(participants []*Participant) ([]*Participant, error) {
		p := findParticipant(participants, id)
		if p == nil {
			return nil, wrapNotFoundf("participant %q", id)
		}
		if r.ID != id && findParticipant(participants, r.ID) != nil {
			return nil, wrapValidationf("id %q is already registered", r.ID)
		}
		p.ID = r.ID
		p.Name = r.Name
		p.Municipality = r.Municipality
		p.Age = r.Age
		updated = p.Clone()
		return participants, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.ClearPendingEdit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("participant updated", zap.String("participant", id), zap.String("new_id", r.ID))
	return updated, nil
}

// DeleteParticipant removes the participant registered as id.
func (s *Simulation) DeleteParticipant(ctx context.Context, id string) error {
	err := s.mutate(ctx, func(participants []*Participant) ([]*Participant, error) {
		for i, p := range participants {
			if p.ID == id {
				return append(participants[:i], participants[i+1:]...), nil
			}
		}
		return nil, wrapNotFoundf("participant %q", id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("participant deleted", zap.String("participant", id))
	return nil
}

// SetParticipation selects or deselects a participant for the next run.
func (s *Simulation) SetParticipation(ctx context.Context, id string, willParticipate bool) error {
	return s.mutate(ctx, func(participants []*Participant) ([]*Participant, error) {
		p := findParticipant(participants, id)
		if p == nil {
			return nil, wrapNotFoundf("participant %q", id)
		}
		p.WillParticipate = willParticipate
		return participants, nil
	})
}

// ClearParticipants removes every participant.
func (s *Simulation) ClearParticipants(ctx context.Context) error {
	s.mu.Lock()
	if err := s.repo.ClearParticipants(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.previous = make(map[string]int)
	snapshot := s.standingsLocked(EventRegistry, nil, s.clock.SimulatedNow(), s.clock.Elapsed())
	s.mu.Unlock()

	s.logger.Info("participant registry cleared")
	s.notify(snapshot)
	return nil
}

// BeginEdit copies the participant registered as id into the pending-edit
// slot and returns it.
func (s *Simulation) BeginEdit(ctx context.Context, id string) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants, err := s.repo.LoadParticipants(ctx)
	if err != nil {
		return nil, err
	}
	p := findParticipant(participants, id)
	if p == nil {
		return nil, wrapNotFoundf("participant %q", id)
	}
	if err := s.repo.SavePendingEdit(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// PendingEdit returns the participant waiting in the edit slot, or nil.
func (s *Simulation) PendingEdit(ctx context.Context) (*Participant, error) {
	return s.repo.LoadPendingEdit(ctx)
}

// CancelEdit empties the pending-edit slot.
func (s *Simulation) CancelEdit(ctx context.Context) error {
	return s.repo.ClearPendingEdit(ctx)
}

// Mode returns the stored mode preference.
func (s *Simulation) Mode(ctx context.Context) (Mode, error) {
	return s.repo.LoadMode(ctx)
}

// SetMode stores the mode preference used by the next Start without an
// explicit mode. A running clock keeps its mode.
func (s *Simulation) SetMode(ctx context.Context, mode Mode) error {
	parsed, err := ParseMode(string(mode))
	if err != nil {
		return err
	}
	if err := s.repo.SaveMode(ctx, parsed); err != nil {
		return err
	}
	s.logger.Info("simulation mode preference changed", zap.String("mode", string(parsed)))
	return nil
}

// mutate applies fn to the loaded participant set under the state lock,
// saves the result and notifies listeners. fn must not save on its own.
func (s *Simulation) mutate(ctx context.Context, fn func([]*Participant) ([]*Participant, error)) error {
	s.mu.Lock()

	participants, err := s.repo.LoadParticipants(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	participants, err = fn(participants)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.repo.SaveParticipants(ctx, participants); err != nil {
		s.mu.Unlock()
		return err
	}

	snapshot := s.standingsLocked(EventRegistry, participants, s.clock.SimulatedNow(), s.clock.Elapsed())
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}
