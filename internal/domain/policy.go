package domain

// ──────────────────────────────────────────────────────────────────────────────
// ResolutionPolicy: one variant per resolution mode
// ──────────────────────────────────────────────────────────────────────────────

// ResolutionPolicy decides who may resolve a market's options and when a
// submission becomes final. The set of variants is closed: OraclePolicy,
// AuthorityPolicy, OpinionPolicy, LegacyPolicy and NoAuthorityPolicy.
type ResolutionPolicy interface {
	// Name is recorded on settlement records.
	Name() string
	// CanDirectResolve reports whether a may resolve an option outright.
	CanDirectResolve(a Actor, m *Market) bool
	// CanSubmit reports whether a may append a resolution submission.
	CanSubmit(a Actor, m *Market) bool
	// Disputable reports whether resolutions open a dispute window.
	Disputable() bool

	policy()
}

// OraclePolicy: platform admins resolve and submit; admin action is final.
type OraclePolicy struct{}

// AuthorityPolicy: only the designated resolver (the creator when none is
// set) resolves directly; there is no submission path.
type AuthorityPolicy struct{}

// OpinionPolicy: the creator or an admin submits; Quorum matching
// submissions finalize. Opinion outcomes are never disputable.
type OpinionPolicy struct {
	Quorum int
}

// LegacyPolicy applies to markets created before resolution modes existed:
// the creator, an admin or the designated resolver resolves directly.
type LegacyPolicy struct{}

// NoAuthorityPolicy is used for unrecognized modes. Nobody can resolve.
type NoAuthorityPolicy struct {
	Mode string
}

// PolicyFor returns the policy of a market's resolution mode. A NULL mode is
// legacy; an unrecognized value yields NoAuthorityPolicy.
func PolicyFor(mode *ResolutionMode, opinionQuorum int) ResolutionPolicy {
	if mode == nil {
		return LegacyPolicy{}
	}
	switch *mode {
	case ModeOracle:
		return OraclePolicy{}
	case ModeAuthority:
		return AuthorityPolicy{}
	case ModeOpinion:
		if opinionQuorum < 1 {
			opinionQuorum = 1
		}
		return OpinionPolicy{Quorum: opinionQuorum}
	default:
		return NoAuthorityPolicy{Mode: string(*mode)}
	}
}

// HasAuthority is false only for NoAuthorityPolicy.
func HasAuthority(p ResolutionPolicy) bool {
	_, none := p.(NoAuthorityPolicy)
	return !none
}

func (OraclePolicy) Name() string { return string(ModeOracle) }

func (OraclePolicy) CanDirectResolve(a Actor, _ *Market) bool { return a.IsAdmin() }

func (OraclePolicy) CanSubmit(a Actor, _ *Market) bool { return a.IsAdmin() }

func (OraclePolicy) Disputable() bool { return true }

func (OraclePolicy) policy() {}

func (AuthorityPolicy) Name() string { return string(ModeAuthority) }

func (AuthorityPolicy) CanDirectResolve(a Actor, m *Market) bool {
	if m.ResolverID != nil {
		return a.UserID == *m.ResolverID
	}
	return a.UserID == m.CreatorID
}

func (AuthorityPolicy) CanSubmit(Actor, *Market) bool { return false }

func (AuthorityPolicy) Disputable() bool { return true }

func (AuthorityPolicy) policy() {}

func (OpinionPolicy) Name() string { return string(ModeOpinion) }

func (OpinionPolicy) CanDirectResolve(Actor, *Market) bool { return false }

func (OpinionPolicy) CanSubmit(a Actor, m *Market) bool {
	return a.UserID == m.CreatorID || a.IsAdmin()
}

func (OpinionPolicy) Disputable() bool { return false }

func (OpinionPolicy) policy() {}

func (LegacyPolicy) Name() string { return "LEGACY" }

func (LegacyPolicy) CanDirectResolve(a Actor, m *Market) bool {
	return a.UserID == m.CreatorID ||
		a.IsAdmin() ||
		(m.ResolverID != nil && a.UserID == *m.ResolverID)
}

func (p LegacyPolicy) CanSubmit(a Actor, m *Market) bool { return p.CanDirectResolve(a, m) }

func (LegacyPolicy) Disputable() bool { return true }

func (LegacyPolicy) policy() {}

func (p NoAuthorityPolicy) Name() string { return p.Mode }

func (NoAuthorityPolicy) CanDirectResolve(Actor, *Market) bool { return false }

func (NoAuthorityPolicy) CanSubmit(Actor, *Market) bool { return false }

func (NoAuthorityPolicy) Disputable() bool { return false }

func (NoAuthorityPolicy) policy() {}

// Finalizes reports whether the submissions of the current round settle the
// option on outcome.
func Finalizes(p ResolutionPolicy, round []*ResolutionSubmission, outcome Side) bool {
	switch v := p.(type) {
	case OraclePolicy, LegacyPolicy:
		return true
	case OpinionPolicy:
		voters := make(map[string]bool)
		for _, s := range round {
			if s.Outcome == outcome {
				voters[s.SubmitterID.String()] = true
			}
		}
		return len(voters) >= v.Quorum
	case AuthorityPolicy, NoAuthorityPolicy:
		return false
	default:
		return false
	}
}
