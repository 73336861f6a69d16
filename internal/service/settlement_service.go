package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
)

// Archiver stores an encoded settlement record under key. Implemented by the
// S3 blob writer.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Verification is the result of recomputing a record's canonical hash.
type Verification struct {
	Record       *domain.SettlementRecord `json:"record"`
	Valid        bool                     `json:"valid"`
	ComputedHash string                   `json:"computed_hash"`
}

// ──────────────────────────────────────────────────────────────────────────────
// SettlementService
// ──────────────────────────────────────────────────────────────────────────────

// SettlementService reads, verifies and archives settlement records.
type SettlementService struct {
	settlementRepo SettlementStore
	archiver       Archiver // nil when archiving is disabled
	prefix         string
	now            Clock
}

// NewSettlementService creates a SettlementService. keyPrefix is prepended
// to every archive key.
func NewSettlementService(settlementRepo SettlementStore, keyPrefix string) *SettlementService {
	return &SettlementService{
		settlementRepo: settlementRepo,
		prefix:         keyPrefix,
		now:            systemClock,
	}
}

// SetArchiver injects the object store post-construction.
func (s *SettlementService) SetArchiver(a Archiver) { s.archiver = a }

// SetClock replaces the time source.
func (s *SettlementService) SetClock(c Clock) { s.now = c }

// VerifySettlement recomputes the canonical hash of a stored record.
func (s *SettlementService) VerifySettlement(ctx context.Context, id uuid.UUID) (*Verification, error) {
	rec, err := s.settlementRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, computed, err := rec.Verify()
	if err != nil {
		return nil, fmt.Errorf("settlement_service.VerifySettlement: %w", err)
	}
	if !ok {
		log.Printf("[settlement] WARN: record %s fails verification (stored %s, computed %s)", rec.ID, rec.CanonicalHash, computed)
	}
	return &Verification{Record: rec, Valid: ok, ComputedHash: computed}, nil
}

// ListSettlements returns the settlement history of a market, oldest first.
func (s *SettlementService) ListSettlements(ctx context.Context, marketID uuid.UUID) ([]*domain.SettlementRecord, error) {
	return s.settlementRepo.ListByMarket(ctx, marketID)
}

// ArchivePending copies up to limit unarchived records to object storage and
// marks them archived. It returns the number archived; a failing record stops
// the batch so it is retried first on the next run.
func (s *SettlementService) ArchivePending(ctx context.Context, limit int) (int, error) {
	if s.archiver == nil {
		return 0, nil
	}
	recs, err := s.settlementRepo.ListUnarchived(ctx, limit)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, rec := range recs {
		body, err := json.Marshal(rec)
		if err != nil {
			return archived, fmt.Errorf("settlement_service.ArchivePending: encode %s: %w", rec.ID, err)
		}
		if err := s.archiver.Put(ctx, ArchiveKey(s.prefix, rec), body, "application/json"); err != nil {
			return archived, fmt.Errorf("settlement_service.ArchivePending: put %s: %w", rec.ID, err)
		}
		if err := s.settlementRepo.MarkArchived(ctx, rec.ID, s.now()); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

// ArchiveKey returns the object key of a record:
// <prefix><market_id>/<option_id>/<record_id>.json
func ArchiveKey(prefix string, rec *domain.SettlementRecord) string {
	return prefix + path.Join(rec.MarketID.String(), rec.OptionID.String(), rec.ID.String()+".json")
}
