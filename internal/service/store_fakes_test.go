package service_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/curve"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// journal: ordered record of storage calls and transaction boundaries
// ──────────────────────────────────────────────────────────────────────────────

type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = nil
}

func (j *journal) has(call string) bool {
	for _, c := range j.list() {
		if c == call {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// A database/sql driver that only opens and ends transactions. The services
// get a real *sqlx.Tx; every statement goes through the fake stores.
// ──────────────────────────────────────────────────────────────────────────────

type txConnector struct{ j *journal }

func (c txConnector) Connect(context.Context) (driver.Conn, error) {
	return txConn(c), nil
}

func (c txConnector) Driver() driver.Driver {
	return txDriver(c)
}

type txDriver struct{ j *journal }

func (d txDriver) Open(string) (driver.Conn, error) { return txConn(d), nil }

type txConn struct{ j *journal }

func (c txConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("statements go through the stores")
}

func (c txConn) Close() error { return nil }

func (c txConn) Begin() (driver.Tx, error) {
	c.j.add("begin")
	return txHandle(c), nil
}

type txHandle struct{ j *journal }

func (t txHandle) Commit() error {
	t.j.add("commit")
	return nil
}

func (t txHandle) Rollback() error {
	t.j.add("rollback")
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// store: committed rows, held by value so callers only see copies
// ──────────────────────────────────────────────────────────────────────────────

type store struct {
	j         *journal
	markets   map[uuid.UUID]domain.Market
	options   map[uuid.UUID][]domain.MarketOption
	wallets   map[uuid.UUID]domain.Wallet
	treasury  domain.Wallet
	txns      []domain.Transaction
	holdings  map[string]domain.OptionHolding
	trades    []domain.Trade
	positions map[string]domain.LiquidityPosition
	subs      []domain.ResolutionSubmission
	disputes  []domain.Dispute
	records   []domain.SettlementRecord
}

func newStore(j *journal) *store {
	kind := domain.WalletTypeTreasury
	return &store{
		j:         j,
		markets:   make(map[uuid.UUID]domain.Market),
		options:   make(map[uuid.UUID][]domain.MarketOption),
		wallets:   make(map[uuid.UUID]domain.Wallet),
		treasury:  domain.Wallet{ID: uuid.New(), WalletType: &kind},
		holdings:  make(map[string]domain.OptionHolding),
		positions: make(map[string]domain.LiquidityPosition),
	}
}

func pairKey(a, b uuid.UUID) string { return a.String() + "/" + b.String() }

// ── markets ──────────────────────────────────────────────────────────────────

type fakeMarkets struct{ *store }

func (f fakeMarkets) Create(_ context.Context, _ *sqlx.Tx, m *domain.Market) error {
	f.j.add("market.create")
	f.markets[m.ID] = *m
	return nil
}

func (f fakeMarkets) GetByID(_ context.Context, id uuid.UUID) (*domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return &m, nil
}

func (f fakeMarkets) LockForUpdate(ctx context.Context, _ *sqlx.Tx, id uuid.UUID) (*domain.Market, error) {
	f.j.add("market.lock")
	return f.GetByID(ctx, id)
}

func (f fakeMarkets) Update(_ context.Context, _ *sqlx.Tx, m *domain.Market) error {
	f.j.add("market.update")
	f.markets[m.ID] = *m
	return nil
}

func (f fakeMarkets) List(_ context.Context, limit, offset int, status string) ([]*domain.Market, int, error) {
	var out []*domain.Market
	for _, m := range f.markets {
		if status == "" || string(m.Status) == status {
			m := m
			out = append(out, &m)
		}
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (f fakeMarkets) CreateOptions(_ context.Context, _ *sqlx.Tx, options []*domain.MarketOption) error {
	for _, o := range options {
		f.options[o.MarketID] = append(f.options[o.MarketID], *o)
	}
	return nil
}

func (f fakeMarkets) ListOptions(_ context.Context, marketID uuid.UUID) ([]*domain.MarketOption, error) {
	out := make([]*domain.MarketOption, 0, len(f.options[marketID]))
	for _, o := range f.options[marketID] {
		o := o
		out = append(out, &o)
	}
	return out, nil
}

func (f fakeMarkets) ListOptionsTx(ctx context.Context, _ *sqlx.Tx, marketID uuid.UUID) ([]*domain.MarketOption, error) {
	return f.ListOptions(ctx, marketID)
}

func (f fakeMarkets) UpdateOption(_ context.Context, _ *sqlx.Tx, o *domain.MarketOption) error {
	f.j.add("option.update")
	for i, existing := range f.options[o.MarketID] {
		if existing.ID == o.ID {
			f.options[o.MarketID][i] = *o
			return nil
		}
	}
	return domain.ErrOptionNotFound
}

// ── wallets ──────────────────────────────────────────────────────────────────

type fakeWallets struct{ *store }

func (f fakeWallets) Debit(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, amount domain.Micros) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	f.j.add("wallet.debit")
	w, ok := f.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	if w.Balance < amount {
		return nil, domain.ErrInsufficientBalance
	}
	before := w
	w.Balance -= amount
	f.wallets[userID] = w
	return &before, nil
}

func (f fakeWallets) Credit(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, amount domain.Micros) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	f.j.add("wallet.credit")
	w, ok := f.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	before := w
	w.Balance += amount
	f.wallets[userID] = w
	return &before, nil
}

func (f fakeWallets) CreditTreasury(_ context.Context, _ *sqlx.Tx, amount domain.Micros) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	f.j.add("treasury.credit")
	before := f.treasury
	f.treasury.Balance += amount
	return &before, nil
}

func (f fakeWallets) LogTransaction(_ context.Context, _ *sqlx.Tx, txn *domain.Transaction) error {
	f.j.add("wallet.log")
	f.txns = append(f.txns, *txn)
	return nil
}

// ── trades ───────────────────────────────────────────────────────────────────

type fakeTrades struct{ *store }

func holdingKey(userID, optionID uuid.UUID, side domain.Side) string {
	return pairKey(userID, optionID) + "/" + side.String()
}

func (f fakeTrades) Create(_ context.Context, _ *sqlx.Tx, t *domain.Trade) error {
	f.j.add("trade.create")
	f.trades = append(f.trades, *t)
	return nil
}

func (f fakeTrades) GetHoldingForUpdate(_ context.Context, _ *sqlx.Tx, userID, optionID uuid.UUID, side domain.Side) (*domain.OptionHolding, error) {
	f.j.add("holding.lock")
	if h, ok := f.holdings[holdingKey(userID, optionID, side)]; ok {
		return &h, nil
	}
	return &domain.OptionHolding{UserID: userID, OptionID: optionID, Side: side, Quantity: decimal.Zero}, nil
}

func (f fakeTrades) UpsertHolding(_ context.Context, _ *sqlx.Tx, h *domain.OptionHolding) error {
	f.j.add("holding.upsert")
	f.holdings[holdingKey(h.UserID, h.OptionID, h.Side)] = *h
	return nil
}

func (f fakeTrades) ListHoldings(_ context.Context, userID, _ uuid.UUID) ([]*domain.OptionHolding, error) {
	var out []*domain.OptionHolding
	for _, h := range f.holdings {
		if h.UserID == userID && h.Quantity.IsPositive() {
			h := h
			out = append(out, &h)
		}
	}
	return out, nil
}

// ── liquidity positions ──────────────────────────────────────────────────────

type fakeLiquidity struct{ *store }

func (f fakeLiquidity) GetForUpdate(ctx context.Context, _ *sqlx.Tx, userID, marketID uuid.UUID) (*domain.LiquidityPosition, error) {
	f.j.add("position.lock")
	return f.Get(ctx, userID, marketID)
}

func (f fakeLiquidity) Get(_ context.Context, userID, marketID uuid.UUID) (*domain.LiquidityPosition, error) {
	p, ok := f.positions[pairKey(userID, marketID)]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	return &p, nil
}

func (f fakeLiquidity) Upsert(_ context.Context, _ *sqlx.Tx, p *domain.LiquidityPosition) error {
	f.j.add("position.upsert")
	f.positions[pairKey(p.UserID, p.MarketID)] = *p
	return nil
}

func (f fakeLiquidity) Delete(_ context.Context, _ *sqlx.Tx, id uuid.UUID) error {
	f.j.add("position.delete")
	for k, p := range f.positions {
		if p.ID == id {
			delete(f.positions, k)
		}
	}
	return nil
}

func (f fakeLiquidity) SumShares(_ context.Context, marketID uuid.UUID) (int64, error) {
	var total int64
	for _, p := range f.positions {
		if p.MarketID == marketID {
			total += p.Shares
		}
	}
	return total, nil
}

// ── resolution submissions ───────────────────────────────────────────────────

type fakeResolutions struct{ *store }

func (f fakeResolutions) CreateSubmission(_ context.Context, _ *sqlx.Tx, s *domain.ResolutionSubmission) error {
	f.j.add("submission.create")
	f.subs = append(f.subs, *s)
	return nil
}

func (f fakeResolutions) ListRound(_ context.Context, _ *sqlx.Tx, optionID uuid.UUID, round int) ([]*domain.ResolutionSubmission, error) {
	var out []*domain.ResolutionSubmission
	for _, s := range f.subs {
		if s.OptionID == optionID && s.Round == round {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (f fakeResolutions) ListByOption(_ context.Context, optionID uuid.UUID) ([]*domain.ResolutionSubmission, error) {
	var out []*domain.ResolutionSubmission
	for _, s := range f.subs {
		if s.OptionID == optionID {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

// ── disputes ─────────────────────────────────────────────────────────────────

type fakeDisputes struct{ *store }

func (f fakeDisputes) Create(_ context.Context, _ *sqlx.Tx, d *domain.Dispute) error {
	f.j.add("dispute.create")
	f.disputes = append(f.disputes, *d)
	return nil
}

func (f fakeDisputes) GetByID(_ context.Context, id uuid.UUID) (*domain.Dispute, error) {
	for _, d := range f.disputes {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, domain.ErrDisputeNotFound
}

func (f fakeDisputes) GetForUpdate(ctx context.Context, _ *sqlx.Tx, id uuid.UUID) (*domain.Dispute, error) {
	f.j.add("dispute.lock")
	return f.GetByID(ctx, id)
}

func (f fakeDisputes) UpdateReview(_ context.Context, _ *sqlx.Tx, d *domain.Dispute) error {
	f.j.add("dispute.review")
	for i := range f.disputes {
		if f.disputes[i].ID == d.ID {
			f.disputes[i] = *d
			return nil
		}
	}
	return domain.ErrDisputeNotFound
}

func (f fakeDisputes) HasOpen(_ context.Context, _ *sqlx.Tx, optionID, userID uuid.UUID) (bool, error) {
	for _, d := range f.disputes {
		if d.OptionID == optionID && d.UserID == userID && d.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeDisputes) CountOpen(_ context.Context, _ *sqlx.Tx, marketID uuid.UUID) (int, error) {
	n := 0
	for _, d := range f.disputes {
		if d.MarketID == marketID && d.Status.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (f fakeDisputes) ListUpheld(_ context.Context, _ *sqlx.Tx, optionID uuid.UUID, round int) ([]*domain.Dispute, error) {
	var out []*domain.Dispute
	for _, d := range f.disputes {
		if d.OptionID == optionID && d.ResolutionRound == round && d.Status == domain.DisputeResolved {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ReviewedAt.Before(*out[b].ReviewedAt) })
	return out, nil
}

func (f fakeDisputes) List(_ context.Context, status string, marketID *uuid.UUID, limit, offset int) ([]*domain.Dispute, error) {
	var out []*domain.Dispute
	for _, d := range f.disputes {
		if (status == "" || string(d.Status) == status) && (marketID == nil || d.MarketID == *marketID) {
			d := d
			out = append(out, &d)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── settlement records ───────────────────────────────────────────────────────

type fakeSettlements struct{ *store }

func (f fakeSettlements) Create(_ context.Context, _ *sqlx.Tx, rec *domain.SettlementRecord) error {
	f.j.add("settlement.create")
	f.records = append(f.records, *rec)
	return nil
}

func (f fakeSettlements) GetByID(_ context.Context, id uuid.UUID) (*domain.SettlementRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, domain.ErrSettlementNotFound
}

func (f fakeSettlements) LatestForOption(_ context.Context, _ *sqlx.Tx, optionID uuid.UUID) (*domain.SettlementRecord, error) {
	f.j.add("settlement.latest")
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].OptionID == optionID {
			r := f.records[i]
			return &r, nil
		}
	}
	return nil, domain.ErrSettlementNotFound
}

func (f fakeSettlements) ListByMarket(_ context.Context, marketID uuid.UUID) ([]*domain.SettlementRecord, error) {
	var out []*domain.SettlementRecord
	for _, r := range f.records {
		if r.MarketID == marketID {
			r := r
			out = append(out, &r)
		}
	}
	return out, nil
}

func (f fakeSettlements) ListUnarchived(_ context.Context, limit int) ([]*domain.SettlementRecord, error) {
	var out []*domain.SettlementRecord
	for _, r := range f.records {
		if r.ArchivedAt == nil && len(out) < limit {
			r := r
			out = append(out, &r)
		}
	}
	return out, nil
}

func (f fakeSettlements) MarkArchived(_ context.Context, id uuid.UUID, at time.Time) error {
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].ArchivedAt = &at
			return nil
		}
	}
	return domain.ErrSettlementNotFound
}

// ──────────────────────────────────────────────────────────────────────────────
// harness: services wired to the fake stores with a controllable clock
// ──────────────────────────────────────────────────────────────────────────────

type harness struct {
	j   *journal
	st  *store
	db  *sqlx.DB
	cfg *config.Config
	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	j := &journal{}
	db := sqlx.NewDb(sql.OpenDB(txConnector{j: j}), "postgres")
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Defaults()
	return &harness{
		j:   j,
		st:  newStore(j),
		db:  db,
		cfg: cfg,
		now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (h *harness) clock() time.Time { return h.now }

func (h *harness) tradeService() *service.TradeService {
	svc := service.NewTradeService(h.db, fakeMarkets{h.st}, fakeTrades{h.st}, fakeWallets{h.st}, curve.NewPricer(h.cfg.Curve.K), h.cfg)
	svc.SetClock(h.clock)
	return svc
}

func (h *harness) liquidityService() *service.LiquidityService {
	svc := service.NewLiquidityService(h.db, fakeMarkets{h.st}, fakeLiquidity{h.st}, fakeWallets{h.st}, curve.NewPricer(h.cfg.Curve.K))
	svc.SetClock(h.clock)
	return svc
}

func (h *harness) resolutionService() *service.ResolutionService {
	svc := service.NewResolutionService(h.db, fakeMarkets{h.st}, fakeResolutions{h.st}, fakeDisputes{h.st}, fakeSettlements{h.st}, h.cfg)
	svc.SetClock(h.clock)
	return svc
}

func (h *harness) disputeService() *service.DisputeService {
	svc := service.NewDisputeService(h.db, fakeMarkets{h.st}, fakeDisputes{h.st}, fakeWallets{h.st}, h.cfg)
	svc.SetClock(h.clock)
	return svc
}

// seedMarket stores an open market with one option, expiring in a week.
func (h *harness) seedMarket(creator uuid.UUID, mode domain.ResolutionMode) (marketID, optionID uuid.UUID) {
	m := domain.Market{
		ID:             uuid.New(),
		Question:       "Who wins the final?",
		CreatorID:      creator,
		ResolutionMode: &mode,
		Status:         domain.StatusOpen,
		ExpiresAt:      h.now.Add(7 * 24 * time.Hour),
		CreatedAt:      h.now,
	}
	o := domain.MarketOption{
		ID:          uuid.New(),
		MarketID:    m.ID,
		Label:       "Team A",
		YesQuantity: decimal.Zero,
		NoQuantity:  decimal.Zero,
		CreatedAt:   h.now,
	}
	h.st.markets[m.ID] = m
	h.st.options[m.ID] = []domain.MarketOption{o}
	return m.ID, o.ID
}

// fund gives userID a wallet holding units whole currency units.
func (h *harness) fund(userID uuid.UUID, units int64) {
	id := userID
	h.st.wallets[userID] = domain.Wallet{ID: uuid.New(), UserID: &id, Balance: domain.Micros(units) * domain.MicrosPerUnit}
}

func (h *harness) balance(userID uuid.UUID) domain.Micros { return h.st.wallets[userID].Balance }

func (h *harness) market(id uuid.UUID) domain.Market { return h.st.markets[id] }

func (h *harness) option(marketID uuid.UUID) domain.MarketOption { return h.st.options[marketID][0] }
