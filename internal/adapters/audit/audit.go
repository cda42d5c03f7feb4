// Package audit keeps an encrypted per-batch audit trail. Each record
// is sealed with AES-GCM before it reaches the database, so audit rows
// are unreadable without the process key.
package audit

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record describes one batch run.
type Record struct {
	BatchID      string    `json:"batchId"`
	TenantID     string    `json:"tenantId,omitempty"`
	ItemCount    int       `json:"itemCount"`
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	ModelVersion string    `json:"modelVersion,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// Sealer encrypts and decrypts audit records with a fixed key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a 16- or 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts the record. The nonce is prepended to the ciphertext.
func (s *Sealer) Seal(record Record) ([]byte, error) {
	plain, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a sealed record.
func (s *Sealer) Open(sealed []byte) (Record, error) {
	if len(sealed) < s.aead.NonceSize() {
		return Record{}, fmt.Errorf("sealed record too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Record{}, fmt.Errorf("open record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(plain, &record); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

// Store writes sealed audit records to Postgres.
type Store struct {
	pool   *pgxpool.Pool
	sealer *Sealer
}

// New creates a Store on an existing pool with the given key.
func New(pool *pgxpool.Pool, key []byte) (*Store, error) {
	sealer, err := NewSealer(key)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, sealer: sealer}, nil
}

const insertQuery = `
	INSERT INTO batch_audit (id, sealed_record, created_at)
	VALUES ($1, $2, $3)`

// Append seals the record and stores it.
func (s *Store) Append(ctx context.Context, record Record) error {
	sealed, err := s.sealer.Seal(record)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertQuery, uuid.NewString(), sealed, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
