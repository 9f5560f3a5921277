package triathlon

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/LuisLeon1705/Triatlon-Ujap/kv"
	"go.uber.org/zap"
)

// Store keys. The participant list is rewritten wholesale on every change.
const (
	ParticipantsKey = "participants"
	ModeKey         = "simulationMode"
	PendingEditKey  = "participant-to-update"
)

// Repository reads and writes the simulation records in a kv.Store.
// Missing or malformed records read as empty.
type Repository struct {
	store  kv.Store
	logger *zap.Logger
}

// NewRepository wraps store.
func NewRepository(store kv.Store, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: store, logger: logger}
}

// LoadParticipants returns the stored participant list.
func (r *Repository) LoadParticipants(ctx context.Context) ([]*Participant, error) {
	data, err := r.store.Get(ctx, ParticipantsKey)
	if errors.Is(err, kv.ErrNotFound) {
		return []*Participant{}, nil
	}
	if err != nil {
		return nil, wrapStorage("load participants", err)
	}

	var participants []*Participant
	if err := json.Unmarshal(data, &participants); err != nil {
		r.logger.Warn("malformed participant list, treating as empty", zap.Error(err))
		return []*Participant{}, nil
	}

	// A JSON null entry would otherwise surface as a nil pointer.
	out := make([]*Participant, 0, len(participants))
	for _, p := range participants {
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// SaveParticipants overwrites the stored participant list.
func (r *Repository) SaveParticipants(ctx context.Context, participants []*Participant) error {
	if participants == nil {
		participants = []*Participant{}
	}
	data, err := json.Marshal(participants)
	if err != nil {
		return wrapStorage("encode participants", err)
	}
	if err := r.store.Put(ctx, ParticipantsKey, data); err != nil {
		return wrapStorage("save participants", err)
	}
	return nil
}

// ClearParticipants removes the participant list.
func (r *Repository) ClearParticipants(ctx context.Context) error {
	if err := r.store.Delete(ctx, ParticipantsKey); err != nil {
		return wrapStorage("clear participants", err)
	}
	return nil
}

// LoadMode returns the stored mode preference. When none is stored, or the
// stored value is unreadable, DefaultMode is stored and returned.
func (r *Repository) LoadMode(ctx context.Context) (Mode, error) {
	data, err := r.store.Get(ctx, ModeKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return "", wrapStorage("load mode", err)
	}
	if err == nil {
		if mode, perr := ParseMode(string(data)); perr == nil {
			return mode, nil
		}
		r.logger.Warn("unknown stored mode, using default", zap.ByteString("mode", data))
	}

	if err := r.SaveMode(ctx, DefaultMode); err != nil {
		return "", err
	}
	return DefaultMode, nil
}

// SaveMode stores the mode preference.
func (r *Repository) SaveMode(ctx context.Context, mode Mode) error {
	if err := r.store.Put(ctx, ModeKey, []byte(mode)); err != nil {
		return wrapStorage("save mode", err)
	}
	return nil
}

// LoadPendingEdit returns the participant waiting in the edit slot, or nil.
func (r *Repository) LoadPendingEdit(ctx context.Context) (*Participant, error) {
	data, err := r.store.Get(ctx, PendingEditKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage("load pending edit", err)
	}

	var p Participant
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
		r.logger.Warn("malformed pending edit, ignoring", zap.Error(err))
		return nil, nil
	}
	return &p, nil
}

// SavePendingEdit places p in the edit slot.
func (r *Repository) SavePendingEdit(ctx context.Context, p *Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return wrapStorage("encode pending edit", err)
	}
	if err := r.store.Put(ctx, PendingEditKey, data); err != nil {
		return wrapStorage("save pending edit", err)
	}
	return nil
}

// ClearPendingEdit empties the edit slot.
func (r *Repository) ClearPendingEdit(ctx context.Context) error {
	if err := r.store.Delete(ctx, PendingEditKey); err != nil {
		return wrapStorage("clear pending edit", err)
	}
	return nil
}
