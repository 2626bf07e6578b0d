package anchor

import (
	"context"
	"time"
)

// StoredRecord is what the local signer keeps per anchor reference.
type StoredRecord struct {
	Reference  string    `json:"reference"`
	Digest     string    `json:"digest"` // hex BLAKE2b-256 of the anchored bytes
	Signature  string    `json:"signature"`
	AnchoredAt time.Time `json:"anchored_at"`
}

// RecordStore persists anchor records for later verification.
type RecordStore interface {
	Put(ctx context.Context, record StoredRecord) error
	Get(ctx context.Context, reference string) (*StoredRecord, error)
}
