package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// legacyKeyPrefix prefixes every key of the legacy JSON user store.
const legacyKeyPrefix = "auth:user:"

// legacyUser is one entry of the legacy store.
type legacyUser struct {
	ID      string          `json:"id"`
	Pass    string          `json:"pass"`
	Timings json.RawMessage `json:"timings"`
}

// ImportReport summarises a legacy import.
type ImportReport struct {
	Imported []string `json:"imported"`
	Existing []string `json:"existing"`
	Invalid  []string `json:"invalid"`
}

// ParseLegacyStore reads a legacy users.json document:
//
//	{"auth:user:alice": {"id": "alice", "pass": "$2b$12$...", "timings": [0, 0.2]}}
//
// Entries are returned sorted by username. Entries with a foreign key, an
// empty id, an unrecognised hash or timings that are not a list of numbers
// are reported in invalid instead of failing the whole document.
func ParseLegacyStore(r io.Reader) (records []CredentialRecord, invalid []string, err error) {
	var store map[string]legacyUser
	if err := json.NewDecoder(r).Decode(&store); err != nil {
		return nil, nil, fmt.Errorf("decoding legacy store: %w", err)
	}

	keys := make([]string, 0, len(store))
	for k := range store {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		entry := store[key]
		name, ok := strings.CutPrefix(key, legacyKeyPrefix)
		if !ok || name == "" || entry.ID != name || !isBcryptHash(entry.Pass) {
			invalid = append(invalid, key)
			continue
		}

		timings := rhythm.Vector{}
		if len(entry.Timings) > 0 {
			if err := json.Unmarshal(entry.Timings, &timings); err != nil || timings == nil {
				invalid = append(invalid, key)
				continue
			}
		}

		records = append(records, CredentialRecord{
			Username:       name,
			CredentialHash: entry.Pass,
			Timings:        timings,
		})
	}
	return records, invalid, nil
}

// ImportLegacy stores every valid record of a legacy users.json document.
// Usernames that already exist are skipped, never overwritten.
func ImportLegacy(ctx context.Context, repo CredentialRepository, r io.Reader) (*ImportReport, error) {
	records, invalid, err := ParseLegacyStore(r)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Invalid: invalid}
	for i := range records {
		rec := &records[i]
		err := repo.Create(ctx, rec)
		switch {
		case err == nil:
			report.Imported = append(report.Imported, rec.Username)
		case errors.Is(err, ErrUserExists):
			report.Existing = append(report.Existing, rec.Username)
		default:
			return report, fmt.Errorf("importing %s: %w", rec.Username, err)
		}
	}
	return report, nil
}
