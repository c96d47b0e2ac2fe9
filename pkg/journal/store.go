// Package journal persists a durable record of every bridge debit and
// credit, including replayed credits the core rejected.
package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Store is the Postgres-backed transfer journal.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Init creates the journal table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Transfer)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

// Record appends a transfer row, assigning an id when absent.
func (s *Store) Record(ctx context.Context, t *Transfer) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, err := s.db.NewInsert().Model(t).Exec(ctx); err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}

// MaxOutboundNonce returns the highest nonce of any journaled outbound
// transfer, zero when none exist. Used to resume the outbound counter after
// a restart so GUIDs are never re-derived.
func (s *Store) MaxOutboundNonce(ctx context.Context) (uint64, error) {
	var nonce int64
	err := s.db.NewSelect().
		Model((*Transfer)(nil)).
		ColumnExpr("COALESCE(MAX(nonce), 0)").
		Where("direction = ?", DirectionOutbound).
		Scan(ctx, &nonce)
	if err != nil {
		return 0, fmt.Errorf("failed to query max outbound nonce: %w", err)
	}
	return uint64(nonce), nil
}

// List returns the most recent transfers, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Transfer, error) {
	var transfers []*Transfer
	err := s.db.NewSelect().
		Model(&transfers).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return transfers, nil
}

// ByGUID returns every journaled leg of a message, oldest first.
func (s *Store) ByGUID(ctx context.Context, guid string) ([]*Transfer, error) {
	var transfers []*Transfer
	err := s.db.NewSelect().
		Model(&transfers).
		Where("guid = ?", guid).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers by guid: %w", err)
	}
	return transfers, nil
}

// UpdateStatus sets the status of a journaled transfer.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	_, err := s.db.NewUpdate().
		Model((*Transfer)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update transfer status: %w", err)
	}
	return nil
}
