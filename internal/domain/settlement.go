package domain

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// ──────────────────────────────────────────────────────────────────────────────
// Resolution trace
// ──────────────────────────────────────────────────────────────────────────────

// TraceKind names one step that led to a settlement.
type TraceKind string

const (
	TraceSubmission    TraceKind = "submission"
	TraceDirectResolve TraceKind = "direct_resolve"
	TraceOverturn      TraceKind = "dispute_overturn"
)

// TraceEntry is one ordered step of a resolution trace. Evidence is reduced to
// its digest so the trace stays small and hashable.
type TraceEntry struct {
	Kind           TraceKind  `json:"kind"`
	ActorID        uuid.UUID  `json:"actor_id"`
	Outcome        *Side      `json:"outcome,omitempty"`
	SubmissionID   *uuid.UUID `json:"submission_id,omitempty"`
	DisputeID      *uuid.UUID `json:"dispute_id,omitempty"`
	EvidenceDigest string     `json:"evidence_digest,omitempty"`
	At             string     `json:"at"`
}

// Trace is the ordered list stored in resolution_trace (JSONB).
type Trace []TraceEntry

// Value implements driver.Valuer.
func (t Trace) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *Trace) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = Trace{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("trace: unsupported scan type")
	}
	return json.Unmarshal(data, t)
}

// EvidenceDigest returns the hex SHA3-256 of the evidence encoding, or "" when
// there is none.
func EvidenceDigest(e *Evidence) string {
	if e == nil || e.Item == nil {
		return ""
	}
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FormatTraceTime renders t the way it is hashed: UTC, RFC3339Nano, micro
// precision (the storage precision of TIMESTAMPTZ).
func FormatTraceTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}

// SubmissionTrace converts the submissions of one round into trace entries.
func SubmissionTrace(subs []*ResolutionSubmission) Trace {
	out := make(Trace, 0, len(subs))
	for _, s := range subs {
		outcome := s.Outcome
		id := s.ID
		out = append(out, TraceEntry{
			Kind:           TraceSubmission,
			ActorID:        s.SubmitterID,
			Outcome:        &outcome,
			SubmissionID:   &id,
			EvidenceDigest: EvidenceDigest(s.Evidence),
			At:             FormatTraceTime(s.CreatedAt),
		})
	}
	return out
}

// DirectResolveTrace is the single entry of a direct resolution.
func DirectResolveTrace(actor uuid.UUID, outcome Side, at time.Time) TraceEntry {
	return TraceEntry{
		Kind:    TraceDirectResolve,
		ActorID: actor,
		Outcome: &outcome,
		At:      FormatTraceTime(at),
	}
}

// OverturnTrace records the upheld disputes that reopened an option. Their
// entries lead the trace of the corrective settlement.
func OverturnTrace(upheld []*Dispute) Trace {
	out := make(Trace, 0, len(upheld))
	for _, d := range upheld {
		id := d.ID
		e := TraceEntry{
			Kind:           TraceOverturn,
			DisputeID:      &id,
			EvidenceDigest: EvidenceDigest(d.Evidence),
		}
		if d.ReviewerID != nil {
			e.ActorID = *d.ReviewerID
		}
		if d.ReviewedAt != nil {
			e.At = FormatTraceTime(*d.ReviewedAt)
		}
		out = append(out, e)
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// SettlementRecord
// ──────────────────────────────────────────────────────────────────────────────

// SettlementRecord is the immutable account of how an option was resolved.
// A re-resolution after an upheld dispute writes a new record pointing at the
// one it supersedes.
type SettlementRecord struct {
	ID              uuid.UUID  `json:"id"               db:"id"`
	MarketID        uuid.UUID  `json:"market_id"        db:"market_id"`
	OptionID        uuid.UUID  `json:"option_id"        db:"option_id"`
	FinalOutcome    Side       `json:"final_outcome"    db:"final_outcome"`
	ResolutionMode  string     `json:"resolution_mode"  db:"resolution_mode"`
	ResolverID      uuid.UUID  `json:"resolver_id"      db:"resolver_id"`
	ResolvedAt      time.Time  `json:"resolved_at"      db:"resolved_at"`
	ResolutionTrace Trace      `json:"resolution_trace" db:"resolution_trace"`
	CanonicalHash   string     `json:"canonical_hash"   db:"canonical_hash"`
	SupersedesID    *uuid.UUID `json:"supersedes_id"    db:"supersedes_id"`
	ArchivedAt      *time.Time `json:"archived_at"      db:"archived_at"`
	CreatedAt       time.Time  `json:"created_at"       db:"created_at"`
}

// canonicalSettlement fixes the field order of the hashed document.
type canonicalSettlement struct {
	MarketID     string `json:"market_id"`
	OptionID     string `json:"option_id"`
	Mode         string `json:"mode"`
	Outcome      int16  `json:"outcome"`
	ResolverID   string `json:"resolver_id"`
	ResolvedAt   string `json:"resolved_at"`
	Trace        Trace  `json:"trace"`
	SupersedesID string `json:"supersedes_id"`
}

// NewSettlementRecord builds and hashes a record for a resolved option.
func NewSettlementRecord(o *MarketOption, mode string, resolver uuid.UUID, trace Trace, supersedes *uuid.UUID) (*SettlementRecord, error) {
	if !o.IsResolved || o.WinningSide == nil || o.ResolvedAt == nil {
		return nil, ErrMarketNotResolved
	}
	if trace == nil {
		trace = Trace{}
	}
	r := &SettlementRecord{
		ID:              uuid.New(),
		MarketID:        o.MarketID,
		OptionID:        o.ID,
		FinalOutcome:    *o.WinningSide,
		ResolutionMode:  mode,
		ResolverID:      resolver,
		ResolvedAt:      o.ResolvedAt.UTC().Truncate(time.Microsecond),
		ResolutionTrace: trace,
		SupersedesID:    supersedes,
	}
	hash, err := r.ComputeHash()
	if err != nil {
		return nil, err
	}
	r.CanonicalHash = hash
	return r, nil
}

// ComputeHash returns hex(SHA3-256(canonical JSON)) over the inputs that
// produced the outcome.
func (r *SettlementRecord) ComputeHash() (string, error) {
	doc := canonicalSettlement{
		MarketID:   r.MarketID.String(),
		OptionID:   r.OptionID.String(),
		Mode:       r.ResolutionMode,
		Outcome:    int16(r.FinalOutcome),
		ResolverID: r.ResolverID.String(),
		ResolvedAt: FormatTraceTime(r.ResolvedAt),
		Trace:      r.ResolutionTrace,
	}
	if doc.Trace == nil {
		doc.Trace = Trace{}
	}
	if r.SupersedesID != nil {
		doc.SupersedesID = r.SupersedesID.String()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the canonical hash and compares it with the stored one.
func (r *SettlementRecord) Verify() (bool, string, error) {
	hash, err := r.ComputeHash()
	if err != nil {
		return false, "", err
	}
	return hash == r.CanonicalHash, hash, nil
}
