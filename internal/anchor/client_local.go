package anchor

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"veridoc/internal/platform/config"
	"veridoc/internal/sentinel"
	dErrors "veridoc/pkg/domain-errors"
)

// LocalSigner implements Client with an in-process Ed25519 key. It backs
// non-production environments where the real anchoring service is not
// reachable. Constructible only outside production.
type LocalSigner struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	store   RecordStore
}

var _ Client = (*LocalSigner)(nil)

// NewLocalSigner builds a local signer with a fresh keypair. Records go to
// the given store (Redis in shared test environments, memory in unit tests).
func NewLocalSigner(env config.Environment, store RecordStore) (*LocalSigner, error) {
	if env.IsProduction() {
		return nil, dErrors.New(dErrors.KindConfigurationError,
			"local anchor signer is not available in production mode")
	}
	if store == nil {
		return nil, dErrors.New(dErrors.KindConfigurationError,
			"local anchor signer requires a record store")
	}
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.KindInternal, "generate anchor keypair")
	}
	return &LocalSigner{private: private, public: public, store: store}, nil
}

// Anchor signs the document digest and records the anchor.
func (s *LocalSigner) Anchor(ctx context.Context, docBytes []byte) (*Record, error) {
	if len(docBytes) == 0 {
		return nil, dErrors.New(dErrors.KindInvalidInput, "document bytes are empty")
	}

	digest := blake2b.Sum256(docBytes)
	signature := ed25519.Sign(s.private, digest[:])
	record := StoredRecord{
		Reference:  "local-" + uuid.NewString(),
		Digest:     hex.EncodeToString(digest[:]),
		Signature:  base64.StdEncoding.EncodeToString(signature),
		AnchoredAt: time.Now().UTC(),
	}
	if err := s.store.Put(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.KindAnchorFailed, "store anchor record")
	}
	return &Record{
		Reference:  record.Reference,
		Signature:  record.Signature,
		AnchoredAt: record.AnchoredAt,
	}, nil
}

// VerifyAnchor loads the record and checks the signature against the
// presented bytes. An unknown reference verifies false, not as an error.
func (s *LocalSigner) VerifyAnchor(ctx context.Context, reference string, docBytes []byte) (bool, error) {
	record, err := s.store.Get(ctx, reference)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.KindAnchorFailed, "load anchor record")
	}

	digest := blake2b.Sum256(docBytes)
	if record.Digest != hex.EncodeToString(digest[:]) {
		return false, nil
	}
	signature, err := base64.StdEncoding.DecodeString(record.Signature)
	if err != nil {
		return false, nil
	}
	return ed25519.Verify(s.public, digest[:], signature), nil
}

// Health always succeeds for the local signer.
func (s *LocalSigner) Health(context.Context) error {
	return nil
}
