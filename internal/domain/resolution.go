package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Evidence: tagged union of known shapes plus an opaque fallback
// ──────────────────────────────────────────────────────────────────────────────

// EvidenceKind tags the concrete evidence shape.
type EvidenceKind string

const (
	EvidenceURL        EvidenceKind = "url"
	EvidenceDocument   EvidenceKind = "document"
	EvidenceText       EvidenceKind = "text"
	EvidenceOracleFeed EvidenceKind = "oracle_feed"
	EvidenceOpaque     EvidenceKind = "opaque"
)

// MaxEvidenceBytes bounds the encoded size of any evidence payload.
const MaxEvidenceBytes = 16 * 1024

// EvidenceItem is implemented by URLEvidence, DocumentEvidence, TextEvidence,
// OracleFeedEvidence and OpaqueEvidence.
type EvidenceItem interface {
	Kind() EvidenceKind
	Validate() error
}

// URLEvidence points at a public source.
type URLEvidence struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// DocumentEvidence references an uploaded document by content hash.
type DocumentEvidence struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
}

// TextEvidence is a free-form statement.
type TextEvidence struct {
	Text string `json:"text"`
}

// OracleFeedEvidence records a value observed on a data feed.
type OracleFeedEvidence struct {
	Feed       string    `json:"feed"`
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// OpaqueEvidence keeps any payload the service does not understand.
type OpaqueEvidence struct {
	Raw json.RawMessage `json:"-"`
}

func (URLEvidence) Kind() EvidenceKind        { return EvidenceURL }
func (DocumentEvidence) Kind() EvidenceKind   { return EvidenceDocument }
func (TextEvidence) Kind() EvidenceKind       { return EvidenceText }
func (OracleFeedEvidence) Kind() EvidenceKind { return EvidenceOracleFeed }
func (OpaqueEvidence) Kind() EvidenceKind     { return EvidenceOpaque }

func (e URLEvidence) Validate() error {
	u, err := url.Parse(e.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidEvidence)
	}
	return nil
}

func (e DocumentEvidence) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: document name is required", ErrInvalidEvidence)
	}
	if b, err := hex.DecodeString(e.SHA256); err != nil || len(b) != 32 {
		return fmt.Errorf("%w: document sha256 must be 64 hex characters", ErrInvalidEvidence)
	}
	return nil
}

func (e TextEvidence) Validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidEvidence)
	}
	return nil
}

func (e OracleFeedEvidence) Validate() error {
	if e.Feed == "" || e.Value == "" {
		return fmt.Errorf("%w: oracle feed and value are required", ErrInvalidEvidence)
	}
	if e.ObservedAt.IsZero() {
		return fmt.Errorf("%w: oracle observation time is required", ErrInvalidEvidence)
	}
	return nil
}

func (e OpaqueEvidence) Validate() error {
	if len(e.Raw) == 0 || !json.Valid(e.Raw) {
		return fmt.Errorf("%w: opaque payload must be valid JSON", ErrInvalidEvidence)
	}
	return nil
}

// Evidence wraps one EvidenceItem. It encodes as the item's fields plus a
// "kind" tag; payloads without a known kind decode to OpaqueEvidence.
type Evidence struct {
	Item EvidenceItem
}

// NewEvidence wraps item.
func NewEvidence(item EvidenceItem) *Evidence {
	return &Evidence{Item: item}
}

// Validate checks the wrapped item and the encoded size.
func (e *Evidence) Validate() error {
	if e == nil || e.Item == nil {
		return nil
	}
	if err := e.Item.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
	}
	if len(data) > MaxEvidenceBytes {
		return fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidEvidence, MaxEvidenceBytes)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Evidence) MarshalJSON() ([]byte, error) {
	if e.Item == nil {
		return []byte("null"), nil
	}
	if op, ok := e.Item.(OpaqueEvidence); ok {
		return json.Marshal(struct {
			Kind EvidenceKind    `json:"kind"`
			Data json.RawMessage `json:"data"`
		}{EvidenceOpaque, op.Raw})
	}
	body, err := json.Marshal(e.Item)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(e.Item.Kind())
	if err != nil {
		return nil, err
	}
	// splice {"kind":..., <item fields>}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	buf.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind EvidenceKind    `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		// not an object: keep it verbatim
		e.Item = OpaqueEvidence{Raw: append(json.RawMessage(nil), data...)}
		return nil
	}

	var item EvidenceItem
	switch head.Kind {
	case EvidenceURL:
		var v URLEvidence
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
		}
		item = v
	case EvidenceDocument:
		var v DocumentEvidence
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
		}
		item = v
	case EvidenceText:
		var v TextEvidence
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
		}
		item = v
	case EvidenceOracleFeed:
		var v OracleFeedEvidence
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
		}
		item = v
	case EvidenceOpaque:
		raw := head.Data
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		item = OpaqueEvidence{Raw: append(json.RawMessage(nil), raw...)}
	default:
		item = OpaqueEvidence{Raw: append(json.RawMessage(nil), data...)}
	}
	e.Item = item
	return nil
}

// Value implements driver.Valuer for JSONB columns.
func (e Evidence) Value() (driver.Value, error) {
	if e.Item == nil {
		return nil, nil
	}
	return json.Marshal(e)
}

// Scan implements sql.Scanner for JSONB columns.
func (e *Evidence) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		e.Item = nil
		return nil
	case []byte:
		return e.UnmarshalJSON(v)
	case string:
		return e.UnmarshalJSON([]byte(v))
	default:
		return errors.New("evidence: unsupported scan type")
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// ResolutionSubmission
// ──────────────────────────────────────────────────────────────────────────────

// ResolutionSubmission is an append-only proposed outcome for an option.
type ResolutionSubmission struct {
	ID          uuid.UUID `json:"id"           db:"id"`
	MarketID    uuid.UUID `json:"market_id"    db:"market_id"`
	OptionID    uuid.UUID `json:"option_id"    db:"option_id"`
	Round       int       `json:"round"        db:"round"`
	SubmitterID uuid.UUID `json:"submitter_id" db:"submitter_id"`
	Outcome     Side      `json:"outcome"      db:"outcome"`
	Evidence    *Evidence `json:"evidence"     db:"evidence"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Option resolution
// ──────────────────────────────────────────────────────────────────────────────

// DefaultDisputeWindow is how long a disputable resolution can be contested.
const DefaultDisputeWindow = 2 * time.Hour

// ResolveOption records outcome as final on o. A dispute deadline of
// now+window is set only when the policy is disputable and the resolution is
// not a correction of an overturned outcome.
func ResolveOption(o *MarketOption, outcome Side, p ResolutionPolicy, now time.Time, window time.Duration) error {
	if o.IsResolved {
		return ErrAlreadyResolved
	}
	if !outcome.IsValid() {
		return ErrInvalidOutcome
	}

	side := outcome
	resolvedAt := now
	o.WinningSide = &side
	o.IsResolved = true
	o.ResolvedAt = &resolvedAt
	o.DisputeDeadline = nil
	if p.Disputable() && !o.IsCorrective() {
		deadline := now.Add(window)
		o.DisputeDeadline = &deadline
	}
	return nil
}
