package nodestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity sources.
const (
	SourceGenerated = "generated"
	SourceLegacy    = "legacy"
)

// Identity is the persisted node identifier.
type Identity struct {
	UUID      string
	Source    string
	CreatedAt time.Time
}

// LoadIdentity returns the stored identity without creating one.
func (s *Store) LoadIdentity(ctx context.Context) (Identity, bool, error) {
	ctx = ensureContext(ctx)
	var (
		id      Identity
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT uuid, source, created_at FROM node_identity WHERE id = 1",
	).Scan(&id.UUID, &id.Source, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, fmt.Errorf("load identity: %w", err)
	}
	if ts, perr := parseTimeString(created); perr == nil {
		id.CreatedAt = ts
	}
	return id, true, nil
}

// EnsureIdentity returns the stored identity, creating it on first call. When
// legacyPath names a readable {"uuid": ...} file its value is imported instead
// of generating a fresh one.
func (s *Store) EnsureIdentity(ctx context.Context, legacyPath string) (Identity, error) {
	existing, ok, err := s.LoadIdentity(ctx)
	if err != nil {
		return Identity{}, err
	}
	if ok {
		return existing, nil
	}

	id := Identity{Source: SourceGenerated, CreatedAt: time.Now().UTC()}
	if legacy, lerr := readLegacyUUID(legacyPath); lerr == nil && legacy != "" {
		id.UUID = legacy
		id.Source = SourceLegacy
	} else {
		id.UUID = uuid.NewString()
	}

	if _, err := s.exec(ctx,
		"INSERT OR IGNORE INTO node_identity (id, uuid, source, created_at) VALUES (1, ?, ?, ?)",
		id.UUID, id.Source, id.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return Identity{}, fmt.Errorf("persist identity: %w", err)
	}

	stored, ok, err := s.LoadIdentity(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, errors.New("identity missing after insert")
	}
	return stored, nil
}

func readLegacyUUID(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var payload struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("parse legacy uuid file: %w", err)
	}
	return strings.TrimSpace(payload.UUID), nil
}
