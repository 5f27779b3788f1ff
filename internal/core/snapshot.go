package core

import (
	"time"

	"chrysalis/internal/types"
)

// Snapshot is the persisted engine state. Externally declared predicates are
// recorded by description only; reflection predicates are rebuilt on load.
type Snapshot struct {
	EngineID             string                     `json:"engine_id,omitempty"`
	Birth                time.Time                  `json:"birth"`
	State                types.Candidate            `json:"state"`
	RoundCount           int                        `json:"round_count"`
	VocabularyExpansions map[string]types.Candidate `json:"vocabulary_expansions"`
	Predicates           []PredicateDescription     `json:"predicates,omitempty"`
	SavedAt              time.Time                  `json:"saved_at"`
}

// Clone returns a copy that shares no mutable maps or slices with s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.VocabularyExpansions = make(map[string]types.Candidate, len(s.VocabularyExpansions))
	for k, v := range s.VocabularyExpansions {
		cp.VocabularyExpansions[k] = v
	}
	cp.Predicates = append([]PredicateDescription(nil), s.Predicates...)
	return &cp
}

// SnapshotStore persists engine snapshots. Load returns (nil, nil) when no
// snapshot has been written yet.
type SnapshotStore interface {
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
}

// RoundRecorder is implemented by stores that also keep a per-round log.
type RoundRecorder interface {
	RecordRound(round int, result types.Candidate) error
}
