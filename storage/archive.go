package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shreekarashastry/invalidationgame/simulation"
)

// Key layout:
//
//	b/<id>/summary     BatchEntry
//	b/<id>/sim/<%08d>  SimulationRecord
//	i/<unix nanos>/<id> id, for listing in creation order
var prefixIndex = []byte("i/")

// ErrChecksum is returned when a stored record does not match its fingerprint.
var ErrChecksum = errors.New("archived record does not match its fingerprint")

// BatchEntry is the archived header of one batch.
type BatchEntry struct {
	ID        string                   `json:"id"`
	Seed      int64                    `json:"seed"`
	Created   time.Time                `json:"created"`
	Summary   *simulation.BatchSummary `json:"summary"`
	Checksums []simulation.Hash        `json:"checksums"`
}

// Archive stores batch results in a DB.
type Archive struct {
	db  DB
	now func() time.Time
}

// NewArchive wraps db.
func NewArchive(db DB) *Archive {
	return &Archive{db: db, now: time.Now}
}

func summaryKey(id string) []byte {
	return []byte(fmt.Sprintf("b/%s/summary", id))
}

func recordPrefix(id string) []byte {
	return []byte(fmt.Sprintf("b/%s/sim/", id))
}

func recordKey(id string, index int) []byte {
	return []byte(fmt.Sprintf("b/%s/sim/%08d", id, index))
}

// SaveBatch stores res under a new batch ID and returns it.
func (a *Archive) SaveBatch(res *simulation.BatchResult) (string, error) {
	if res == nil || res.Summary == nil {
		return "", fmt.Errorf("nothing to archive")
	}
	id := uuid.NewString()
	entry := BatchEntry{
		ID:        id,
		Seed:      res.Seed,
		Created:   a.now().UTC(),
		Summary:   res.Summary,
		Checksums: make([]simulation.Hash, len(res.Records)),
	}
	for i, rec := range res.Records {
		entry.Checksums[i] = rec.Fingerprint()
		data, err := json.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("encoding simulation %d: %w", i, err)
		}
		if err := a.db.Put(recordKey(id, i), data); err != nil {
			return "", fmt.Errorf("storing simulation %d: %w", i, err)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encoding batch summary: %w", err)
	}
	if err := a.db.Put(summaryKey(id), data); err != nil {
		return "", fmt.Errorf("storing batch summary: %w", err)
	}
	indexKey := []byte(fmt.Sprintf("i/%020d/%s", entry.Created.UnixNano(), id))
	if err := a.db.Put(indexKey, []byte(id)); err != nil {
		return "", fmt.Errorf("indexing batch: %w", err)
	}
	return id, nil
}

// Batch loads the header of batch id.
func (a *Archive) Batch(id string) (*BatchEntry, error) {
	data, err := a.db.Get(summaryKey(id))
	if err != nil {
		return nil, fmt.Errorf("batch %s: %w", id, err)
	}
	var entry BatchEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding batch %s: %w", id, err)
	}
	return &entry, nil
}

// Records loads every simulation record of batch id, in simulation order,
// and checks each against the fingerprint taken when it was saved.
func (a *Archive) Records(id string) ([]*simulation.SimulationRecord, error) {
	entry, err := a.Batch(id)
	if err != nil {
		return nil, err
	}
	var out []*simulation.SimulationRecord
	err = a.db.ForEach(recordPrefix(id), func(key, value []byte) error {
		var rec simulation.SimulationRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		for _, adv := range rec.Adversaries {
			simulation.ResealChain(adv.Chain)
		}
		out = append(out, &rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) != len(entry.Checksums) {
		return nil, fmt.Errorf("batch %s: found %d records, want %d", id, len(out), len(entry.Checksums))
	}
	for i, rec := range out {
		if rec.Fingerprint() != entry.Checksums[i] {
			return nil, fmt.Errorf("batch %s simulation %d: %w", id, i, ErrChecksum)
		}
	}
	return out, nil
}

// List returns every archived batch header, oldest first.
func (a *Archive) List() ([]*BatchEntry, error) {
	var ids []string
	err := a.db.ForEach(prefixIndex, func(_, value []byte) error {
		ids = append(ids, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*BatchEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := a.Batch(id)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
