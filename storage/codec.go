package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is written into every encoded record.
const CurrentSchemaVersion = 1

// ErrVersionMismatch is returned when decoding a record written by a different schema.
var ErrVersionMismatch = errors.New("storage: record version mismatch")

// EncodePopulation serializes a record, stamping the current schema version.
func EncodePopulation(rec PopulationRecord) ([]byte, error) {
	rec.SchemaVersion = CurrentSchemaVersion
	return json.Marshal(rec)
}

// DecodePopulation parses a record produced by EncodePopulation.
func DecodePopulation(data []byte) (PopulationRecord, error) {
	var rec PopulationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return PopulationRecord{}, err
	}
	if rec.SchemaVersion != CurrentSchemaVersion {
		return PopulationRecord{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, rec.SchemaVersion, CurrentSchemaVersion)
	}
	return rec, nil
}
