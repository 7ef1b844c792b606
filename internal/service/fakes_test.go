package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// In-memory store fakes. They mirror the Postgres stores' contracts: status
// gates return ErrConflict, conditional decrements return
// ErrInsufficientBalance, missing rows return ErrNotFound.

type fakeTx struct {
	failWith error
	calls    int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if f.failWith != nil {
		return f.failWith
	}
	return fn(ctx)
}

type fakePositions struct {
	mu       sync.Mutex
	byID     map[string]domain.Position
	claimErr error
	pauseLog []string
	boostLog []string
}

func newFakePositions(positions ...domain.Position) *fakePositions {
	f := &fakePositions{byID: make(map[string]domain.Position)}
	for _, p := range positions {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakePositions) get(id string) domain.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakePositions) Create(ctx context.Context, pos domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[pos.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.byID[pos.ID] = pos
	return nil
}

func (f *fakePositions) GetByID(ctx context.Context, id string) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.byID[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (f *fakePositions) GetActive(ctx context.Context, userID, trenchID string) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pos := range f.byID {
		if pos.UserID == userID && pos.TrenchID == trenchID && pos.Status == domain.PositionStatusActive {
			return pos, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (f *fakePositions) ListAutoBoost(ctx context.Context, userID string) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, pos := range f.byID {
		if pos.UserID == userID && pos.AutoBoost && pos.Status == domain.PositionStatusActive {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakePositions) ListSettleable(ctx context.Context, now time.Time, limit int) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, pos := range f.byID {
		if pos.Settleable(now) {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EligibleAt.Equal(out[j].EligibleAt) {
			return out[i].EligibleAt.Before(out[j].EligibleAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePositions) ListActiveIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, pos := range f.byID {
		if pos.Status == domain.PositionStatusActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakePositions) UpdateEligibility(ctx context.Context, id string, eligibleAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	pos.EligibleAt = eligibleAt
	f.byID[id] = pos
	return nil
}

func (f *fakePositions) ApplyBoost(ctx context.Context, id string, points int64, eligibleAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if pos.Status != domain.PositionStatusActive {
		return domain.ErrConflict
	}
	pos.BoostPoints += points
	pos.EligibleAt = eligibleAt
	f.byID[id] = pos
	f.boostLog = append(f.boostLog, fmt.Sprintf("%s:%d", id, points))
	return nil
}

func (f *fakePositions) SetAutoBoostPaused(ctx context.Context, id string, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	pos.AutoBoostPaused = paused
	f.byID[id] = pos
	f.pauseLog = append(f.pauseLog, fmt.Sprintf("%s:%v", id, paused))
	return nil
}

func (f *fakePositions) IncreaseEntry(ctx context.Context, id string, amount, maxPayoutDelta float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if pos.Status != domain.PositionStatusActive {
		return domain.ErrConflict
	}
	pos.EntryAmount += amount
	pos.MaxPayout += maxPayoutDelta
	f.byID[id] = pos
	return nil
}

func (f *fakePositions) Claim(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	pos, ok := f.byID[id]
	if !ok || pos.Status != domain.PositionStatusActive {
		return domain.ErrConflict
	}
	pos.Status = domain.PositionStatusProcessing
	f.byID[id] = pos
	return nil
}

func (f *fakePositions) Release(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.byID[id]
	if !ok || pos.Status != domain.PositionStatusProcessing {
		return domain.ErrConflict
	}
	pos.Status = domain.PositionStatusActive
	f.byID[id] = pos
	return nil
}

func (f *fakePositions) MarkPaid(ctx context.Context, id string, amount float64, reference string, paidAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.byID[id]
	if !ok || pos.Status != domain.PositionStatusProcessing {
		return domain.ErrConflict
	}
	pos.Status = domain.PositionStatusPaid
	pos.ReceivedAmount += amount
	pos.SettlementRef = &reference
	pos.PaidAt = &paidAt
	f.byID[id] = pos
	return nil
}

func (f *fakePositions) MarkExited(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.byID[id]
	if !ok || pos.Status != domain.PositionStatusActive {
		return domain.ErrConflict
	}
	pos.Status = domain.PositionStatusExited
	f.byID[id] = pos
	return nil
}

func (f *fakePositions) ExpireDue(ctx context.Context, now time.Time) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []domain.Position
	for id, pos := range f.byID {
		if pos.Status == domain.PositionStatusActive && pos.ExpiresAt != nil && !pos.ExpiresAt.After(now) {
			pos.Status = domain.PositionStatusExpired
			f.byID[id] = pos
			expired = append(expired, pos)
		}
	}
	return expired, nil
}

type fakeTrenches struct {
	mu       sync.Mutex
	byID     map[string]domain.Trench
	statuses []domain.TrenchStatus
}

func newFakeTrenches(trenches ...domain.Trench) *fakeTrenches {
	f := &fakeTrenches{byID: make(map[string]domain.Trench)}
	for _, t := range trenches {
		f.byID[t.ID] = t
	}
	return f
}

func (f *fakeTrenches) get(id string) domain.Trench {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeTrenches) Get(ctx context.Context, id string) (domain.Trench, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return domain.Trench{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *fakeTrenches) ListActive(ctx context.Context) ([]domain.Trench, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Trench
	for _, t := range f.byID {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTrenches) DebitReserve(ctx context.Context, id string, units float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.ReserveUnits < units {
		return domain.ErrInsufficientBalance
	}
	t.ReserveUnits -= units
	f.byID[id] = t
	return nil
}

func (f *fakeTrenches) CreditReserve(ctx context.Context, id string, units float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.ReserveUnits += units
	f.byID[id] = t
	return nil
}

func (f *fakeTrenches) DrawInsurance(ctx context.Context, id string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.InsuranceBuffer < amount {
		return domain.ErrInsufficientBalance
	}
	t.InsuranceBuffer -= amount
	f.byID[id] = t
	return nil
}

func (f *fakeTrenches) CreditInsurance(ctx context.Context, id string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.InsuranceBuffer += amount
	f.byID[id] = t
	return nil
}

func (f *fakeTrenches) SetStatus(ctx context.Context, id string, status domain.TrenchStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.Status == status {
		return false, nil
	}
	t.Status = status
	f.byID[id] = t
	f.statuses = append(f.statuses, status)
	return true, nil
}

type fakeWallets struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{balances: make(map[string]int64)}
}

func (f *fakeWallets) Get(ctx context.Context, userID string) (domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Wallet{UserID: userID, Balance: f.balances[userID]}, nil
}

func (f *fakeWallets) Credit(ctx context.Context, userID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] += amount
	return nil
}

func (f *fakeWallets) Debit(ctx context.Context, userID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[userID] < amount {
		return domain.ErrInsufficientBalance
	}
	f.balances[userID] -= amount
	return nil
}

type fakeUsers struct {
	reputations map[string]int64
}

func (f *fakeUsers) Get(ctx context.Context, id string) (domain.User, error) {
	rep, ok := f.reputations[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return domain.User{ID: id, Reputation: rep}, nil
}

func (f *fakeUsers) Reputations(ctx context.Context, ids []string) (map[string]int64, error) {
	out := make(map[string]int64, len(ids))
	for _, id := range ids {
		out[id] = f.reputations[id]
	}
	return out, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.SettlementEvent
}

func (f *fakeEvents) Append(ctx context.Context, evt domain.SettlementEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	evt.ID = int64(len(f.events) + 1)
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeEvents) List(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SettlementEvent(nil), f.events...), nil
}

func (f *fakeEvents) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SettlementEvent
	for _, evt := range f.events {
		if evt.CreatedAt.Before(before) {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f *fakeEvents) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []domain.SettlementEvent
	var deleted int64
	for _, evt := range f.events {
		if evt.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, evt)
	}
	f.events = kept
	return deleted, nil
}

func (f *fakeEvents) ofKind(kind domain.EventKind) []domain.SettlementEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SettlementEvent
	for _, evt := range f.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

type fakeParams struct {
	rate   int64
	paused bool
}

func (f *fakeParams) MinutesPerPoint(ctx context.Context) (int64, error) { return f.rate, nil }
func (f *fakeParams) SetMinutesPerPoint(ctx context.Context, v int64) error {
	f.rate = v
	return nil
}
func (f *fakeParams) SettlementPaused(ctx context.Context) (bool, error) { return f.paused, nil }
func (f *fakeParams) SetSettlementPaused(ctx context.Context, v bool) error {
	f.paused = v
	return nil
}

type fakeRates struct {
	rate        int64
	invalidated int
}

func (f *fakeRates) MinutesPerPoint(ctx context.Context) (int64, error) { return f.rate, nil }
func (f *fakeRates) Invalidate(ctx context.Context) error {
	f.invalidated++
	return nil
}

type fakeLocks struct {
	held     bool
	acquired int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() {}, nil
}

type fakeBus struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{payloads: make(map[string][][]byte)}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[channel] = append(f.payloads[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

type fakePriceSource struct {
	price float64
	err   error
}

func (f *fakePriceSource) Price(ctx context.Context, asset string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

type payoutCall struct {
	UserID string
	Amount float64
	Asset  string
	Chain  string
}

type fakePayouts struct {
	mu    sync.Mutex
	calls []payoutCall
	err   error
}

func (f *fakePayouts) PayOut(ctx context.Context, userID string, amount float64, asset, chain string) (domain.PayoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.PayoutResult{}, f.err
	}
	f.calls = append(f.calls, payoutCall{UserID: userID, Amount: amount, Asset: asset, Chain: chain})
	return domain.PayoutResult{Reference: fmt.Sprintf("ref-%d", len(f.calls))}, nil
}

// Compile-time checks that the fakes track the domain contracts.
var (
	_ domain.TxManager      = (*fakeTx)(nil)
	_ domain.PositionStore  = (*fakePositions)(nil)
	_ domain.TrenchStore    = (*fakeTrenches)(nil)
	_ domain.WalletStore    = (*fakeWallets)(nil)
	_ domain.UserStore      = (*fakeUsers)(nil)
	_ domain.EventStore     = (*fakeEvents)(nil)
	_ domain.ParamStore     = (*fakeParams)(nil)
	_ domain.RateCache      = (*fakeRates)(nil)
	_ domain.LockManager    = (*fakeLocks)(nil)
	_ domain.SignalBus      = (*fakeBus)(nil)
	_ domain.PriceSource    = (*fakePriceSource)(nil)
	_ domain.PayoutExecutor = (*fakePayouts)(nil)
)
