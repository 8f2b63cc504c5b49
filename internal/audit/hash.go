package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/volna-retail/loyalty-backend/pkg/db/models"
)

// genesisSentinel stands in for the previous hash of a chain's first entry
// so the hashed payload never contains an absent field.
const genesisSentinel = "GENESIS"

// hashPayload is the canonical serialization an entry's hash covers. The
// field set and order are pinned: struct-order JSON with RFC3339Nano UTC
// timestamps is the canonical form, deliberately replacing the original
// platform's implicit default stringification.
type hashPayload struct {
	EventID      string          `json:"event_id"`
	TableName    string          `json:"table_name"`
	RecordID     string          `json:"record_id"`
	Action       string          `json:"action"`
	DiffAfter    json.RawMessage `json:"diff_after"`
	PreviousHash string          `json:"previous_hash"`
	CreatedAt    string          `json:"created_at"`
}

// computeHash derives the SHA-256 hash of the entry's canonical payload.
// It only reads stored fields, so verification can re-derive it from a
// loaded row without any out-of-band state.
func computeHash(entry *models.AuditLogEntry) (string, error) {
	diff, err := canonicalJSON(json.RawMessage(entry.DiffAfter))
	if err != nil {
		return "", fmt.Errorf("canonicalizing diff: %w", err)
	}

	previous := genesisSentinel
	if entry.PreviousHash != nil {
		previous = *entry.PreviousHash
	}

	payload := hashPayload{
		EventID:      entry.EventID,
		TableName:    entry.TargetTable,
		RecordID:     entry.RecordID,
		Action:       string(entry.Action),
		DiffAfter:    diff,
		PreviousHash: previous,
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding hash payload: %w", err)
	}

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON reduces raw JSON to a deterministic byte form: compact,
// object keys sorted. jsonb storage does not preserve key order or
// whitespace, so hashing the raw stored bytes would make verification
// depend on the database's internal representation.
func canonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}
