package domain_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
)

func modePtr(m domain.ResolutionMode) *domain.ResolutionMode { return &m }

// ── Policies ──────────────────────────────────────────────────────────────────

func TestPolicyFor(t *testing.T) {
	cases := []struct {
		mode *domain.ResolutionMode
		want string
	}{
		{nil, "LEGACY"},
		{modePtr(domain.ModeOracle), "ORACLE"},
		{modePtr(domain.ModeAuthority), "AUTHORITY"},
		{modePtr(domain.ModeOpinion), "OPINION"},
		{modePtr("COUNCIL"), "COUNCIL"},
	}
	for _, tc := range cases {
		p := domain.PolicyFor(tc.mode, 0)
		if p.Name() != tc.want {
			t.Errorf("PolicyFor(%v).Name() = %s, want %s", tc.mode, p.Name(), tc.want)
		}
	}
	if op, ok := domain.PolicyFor(modePtr(domain.ModeOpinion), 0).(domain.OpinionPolicy); !ok || op.Quorum != 1 {
		t.Errorf("opinion quorum should default to 1, got %+v", op)
	}
	if domain.HasAuthority(domain.PolicyFor(modePtr("COUNCIL"), 1)) {
		t.Error("unrecognized mode must not have authority")
	}
}

func TestPolicies_Authorization(t *testing.T) {
	creator := uuid.New()
	resolver := uuid.New()
	m := &domain.Market{ID: uuid.New(), CreatorID: creator}

	admin := domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin}
	owner := domain.Actor{UserID: creator, Role: domain.RoleUser}
	designated := domain.Actor{UserID: resolver, Role: domain.RoleUser}
	stranger := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}

	type want struct{ resolve, submit bool }
	cases := []struct {
		name       string
		policy     domain.ResolutionPolicy
		resolverID *uuid.UUID
		actor      domain.Actor
		want       want
	}{
		{"oracle/admin", domain.OraclePolicy{}, nil, admin, want{true, true}},
		{"oracle/creator", domain.OraclePolicy{}, nil, owner, want{false, false}},
		{"authority/creator without resolver", domain.AuthorityPolicy{}, nil, owner, want{true, false}},
		{"authority/designated", domain.AuthorityPolicy{}, &resolver, designated, want{true, false}},
		{"authority/creator with resolver", domain.AuthorityPolicy{}, &resolver, owner, want{false, false}},
		{"authority/admin", domain.AuthorityPolicy{}, nil, admin, want{false, false}},
		{"opinion/creator", domain.OpinionPolicy{Quorum: 1}, nil, owner, want{false, true}},
		{"opinion/admin", domain.OpinionPolicy{Quorum: 1}, nil, admin, want{false, true}},
		{"opinion/stranger", domain.OpinionPolicy{Quorum: 1}, nil, stranger, want{false, false}},
		{"legacy/creator", domain.LegacyPolicy{}, nil, owner, want{true, true}},
		{"legacy/admin", domain.LegacyPolicy{}, nil, admin, want{true, true}},
		{"legacy/designated", domain.LegacyPolicy{}, &resolver, designated, want{true, true}},
		{"legacy/stranger", domain.LegacyPolicy{}, nil, stranger, want{false, false}},
		{"none/admin", domain.NoAuthorityPolicy{Mode: "X"}, nil, admin, want{false, false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m.ResolverID = tc.resolverID
			if got := tc.policy.CanDirectResolve(tc.actor, m); got != tc.want.resolve {
				t.Errorf("CanDirectResolve() = %v, want %v", got, tc.want.resolve)
			}
			if got := tc.policy.CanSubmit(tc.actor, m); got != tc.want.submit {
				t.Errorf("CanSubmit() = %v, want %v", got, tc.want.submit)
			}
		})
	}
}

func TestFinalizes_OpinionQuorum(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	sub := func(who uuid.UUID, s domain.Side) *domain.ResolutionSubmission {
		return &domain.ResolutionSubmission{ID: uuid.New(), SubmitterID: who, Outcome: s}
	}
	p := domain.OpinionPolicy{Quorum: 2}

	round := []*domain.ResolutionSubmission{sub(a, domain.SideYes), sub(a, domain.SideYes)}
	if domain.Finalizes(p, round, domain.SideYes) {
		t.Error("duplicate submitter must count once")
	}
	round = append(round, sub(b, domain.SideNo))
	if domain.Finalizes(p, round, domain.SideYes) {
		t.Error("disagreeing submission must not count toward YES")
	}
	round = append(round, sub(b, domain.SideYes))
	if !domain.Finalizes(p, round, domain.SideYes) {
		t.Error("two distinct YES submitters should reach quorum 2")
	}
	if !domain.Finalizes(domain.OpinionPolicy{Quorum: 1}, round[:1], domain.SideYes) {
		t.Error("single creator submission should finalize with quorum 1")
	}
	if !domain.Finalizes(domain.OraclePolicy{}, round[:1], domain.SideYes) {
		t.Error("oracle submissions are immediately final")
	}
	if domain.Finalizes(domain.NoAuthorityPolicy{}, round, domain.SideYes) {
		t.Error("no authority must never finalize")
	}
}

// ── ResolveOption ─────────────────────────────────────────────────────────────

func TestResolveOption(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := newOption(newOpenMarket(now))

	if err := domain.ResolveOption(o, domain.SideYes, domain.AuthorityPolicy{}, now, 2*time.Hour); err != nil {
		t.Fatalf("ResolveOption() error = %v", err)
	}
	if !o.IsResolved || o.WinningSide == nil || *o.WinningSide != domain.SideYes {
		t.Fatalf("option not resolved to YES: %+v", o)
	}
	if o.DisputeDeadline == nil || !o.DisputeDeadline.Equal(now.Add(2*time.Hour)) {
		t.Errorf("DisputeDeadline = %v, want now+2h", o.DisputeDeadline)
	}

	err := domain.ResolveOption(o, domain.SideNo, domain.AuthorityPolicy{}, now, 2*time.Hour)
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("second resolve: err = %v, want ErrAlreadyResolved", err)
	}
	if *o.WinningSide != domain.SideYes {
		t.Error("winning side changed on rejected resolve")
	}
}

func TestResolveOption_OpinionHasNoDeadline(t *testing.T) {
	now := time.Now().UTC()
	o := newOption(newOpenMarket(now))
	if err := domain.ResolveOption(o, domain.SideNo, domain.OpinionPolicy{Quorum: 1}, now, 2*time.Hour); err != nil {
		t.Fatal(err)
	}
	if o.DisputeDeadline != nil {
		t.Errorf("opinion resolution set a dispute deadline: %v", o.DisputeDeadline)
	}
}

func TestResolveOption_CorrectionHasNoDeadline(t *testing.T) {
	now := time.Now().UTC()
	o := newOption(newOpenMarket(now))
	_ = domain.ResolveOption(o, domain.SideYes, domain.OraclePolicy{}, now, 2*time.Hour)
	o.Overturn()
	if o.IsResolved || o.WinningSide != nil || o.ResolutionRound != 1 {
		t.Fatalf("Overturn() left %+v", o)
	}
	if err := domain.ResolveOption(o, domain.SideNo, domain.OraclePolicy{}, now, 2*time.Hour); err != nil {
		t.Fatal(err)
	}
	if o.DisputeDeadline != nil {
		t.Error("corrective resolution must not reopen the dispute window")
	}
}

func TestResolveOption_InvalidOutcome(t *testing.T) {
	o := newOption(newOpenMarket(time.Now()))
	if err := domain.ResolveOption(o, domain.Side(0), domain.OraclePolicy{}, time.Now(), time.Hour); !errors.Is(err, domain.ErrInvalidOutcome) {
		t.Errorf("err = %v, want ErrInvalidOutcome", err)
	}
	if o.IsResolved {
		t.Error("option resolved despite invalid outcome")
	}
}

// ── Evidence ──────────────────────────────────────────────────────────────────

func TestEvidence_KnownKinds(t *testing.T) {
	cases := []struct {
		in   string
		want domain.EvidenceKind
	}{
		{`{"kind":"url","url":"https://example.com/result"}`, domain.EvidenceURL},
		{`{"kind":"text","text":"final whistle 2-1"}`, domain.EvidenceText},
		{`{"kind":"document","name":"report.pdf","sha256":"` + strings.Repeat("ab", 32) + `"}`, domain.EvidenceDocument},
		{`{"kind":"oracle_feed","feed":"scores","value":"2-1","observed_at":"2026-03-01T12:00:00Z"}`, domain.EvidenceOracleFeed},
		{`{"kind":"opaque","data":{"anything":[1,2,3]}}`, domain.EvidenceOpaque},
	}
	for _, tc := range cases {
		in, want := tc.in, tc.want
		var e domain.Evidence
		if err := json.Unmarshal([]byte(in), &e); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", in, err)
			continue
		}
		if e.Item.Kind() != want {
			t.Errorf("Unmarshal(%s) kind = %s, want %s", in, e.Item.Kind(), want)
		}
		if err := e.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v", in, err)
		}
		out, err := json.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		var again domain.Evidence
		if err := json.Unmarshal(out, &again); err != nil || again.Item.Kind() != want {
			t.Errorf("re-decoding %s gave kind %v, err %v", out, again.Item, err)
		}
	}
}

func TestEvidence_UnknownKindIsOpaque(t *testing.T) {
	raw := `{"kind":"video","frames":12}`
	var e domain.Evidence
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatal(err)
	}
	op, ok := e.Item.(domain.OpaqueEvidence)
	if !ok {
		t.Fatalf("unknown kind decoded to %T, want OpaqueEvidence", e.Item)
	}
	if string(op.Raw) != raw {
		t.Errorf("opaque payload = %s, want %s", op.Raw, raw)
	}
}

func TestEvidence_Validate(t *testing.T) {
	bad := []domain.EvidenceItem{
		domain.URLEvidence{URL: "ftp://example.com"},
		domain.URLEvidence{URL: "not a url"},
		domain.DocumentEvidence{Name: "x.pdf", SHA256: "abc"},
		domain.TextEvidence{Text: "  "},
		domain.OracleFeedEvidence{Feed: "scores"},
		domain.TextEvidence{Text: strings.Repeat("a", domain.MaxEvidenceBytes)},
	}
	for _, item := range bad {
		if err := domain.NewEvidence(item).Validate(); !errors.Is(err, domain.ErrInvalidEvidence) {
			t.Errorf("Validate(%T) = %v, want ErrInvalidEvidence", item, err)
		}
	}
	var none *domain.Evidence
	if err := none.Validate(); err != nil {
		t.Errorf("nil evidence Validate() = %v, want nil", err)
	}
}

func TestEvidence_ScanValue(t *testing.T) {
	e := domain.NewEvidence(domain.TextEvidence{Text: "confirmed"})
	v, err := e.Value()
	if err != nil {
		t.Fatal(err)
	}
	var back domain.Evidence
	if err := back.Scan(v); err != nil {
		t.Fatal(err)
	}
	if txt, ok := back.Item.(domain.TextEvidence); !ok || txt.Text != "confirmed" {
		t.Errorf("Scan(Value()) = %#v", back.Item)
	}
}
