package integration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Credential store
// ---------------------------------------------------------------------------

type memoryStore struct {
	mu      sync.Mutex
	creds   map[string]*integration.Credential
	upserts int
}

func newMemoryStore(creds ...*integration.Credential) *memoryStore {
	s := &memoryStore{creds: make(map[string]*integration.Credential)}
	for _, c := range creds {
		s.creds[c.ShopCode] = c.Clone()
	}
	return s
}

func (s *memoryStore) GetByShop(_ context.Context, shopCode string) (*integration.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[shopCode]
	if !ok {
		return nil, integration.ErrCredentialMissing
	}
	return c.Clone(), nil
}

func (s *memoryStore) Upsert(_ context.Context, cred *integration.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.ShopCode] = cred.Clone()
	s.upserts++
	return nil
}

func (s *memoryStore) get(shopCode string) *integration.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds[shopCode].Clone()
}

// ---------------------------------------------------------------------------
// Token client
// ---------------------------------------------------------------------------

// MockTokenClient is a mock implementation of TokenClient
type MockTokenClient struct {
	mock.Mock
}

func (m *MockTokenClient) Authorize(ctx context.Context, cred *integration.Credential) (integration.TokenGrant, error) {
	args := m.Called(ctx, cred)
	return args.Get(0).(integration.TokenGrant), args.Error(1)
}

func (m *MockTokenClient) Refresh(ctx context.Context, cred *integration.Credential) (integration.TokenGrant, error) {
	args := m.Called(ctx, cred)
	return args.Get(0).(integration.TokenGrant), args.Error(1)
}

// ---------------------------------------------------------------------------
// Lock and sink
// ---------------------------------------------------------------------------

type localLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLock() *localLock {
	return &localLock{locks: make(map[string]*sync.Mutex)}
}

func (l *localLock) Lock(_ context.Context, shopCode string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[shopCode]
	if !ok {
		m = &sync.Mutex{}
		l.locks[shopCode] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

type recordingSink struct {
	mu      sync.Mutex
	reports []integration.ErrorReport
}

func (s *recordingSink) Report(_ context.Context, r integration.ErrorReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

func (s *recordingSink) kinds() []integration.ErrorKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]integration.ErrorKind, len(s.reports))
	for i, r := range s.reports {
		out[i] = r.Kind
	}
	return out
}

// ---------------------------------------------------------------------------
// Order source
// ---------------------------------------------------------------------------

type fakeSource struct {
	marketplace integration.Marketplace
	total       int
	reported    int
	maxPage     int
	searchCalls []integration.SearchRequest
	detailCalls []integration.DetailRequest
	detailTimes []time.Time
	details     map[string]*integration.OrderEnvelope
	detailErrs  map[string]error
	searchErr   error
}

func (f *fakeSource) Marketplace() integration.Marketplace { return f.marketplace }

func (f *fakeSource) DefaultDetailFields() []string { return []string{"OrderId", "ItemId"} }

func (f *fakeSource) MaxPageSize() int { return f.maxPage }

func (f *fakeSource) SearchOrders(_ context.Context, req integration.SearchRequest) (*integration.SearchPage, error) {
	f.searchCalls = append(f.searchCalls, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	start := (req.PageIndex - 1) * req.PageSize
	end := start + req.PageSize
	if end > f.total {
		end = f.total
	}
	reported := f.total
	if f.reported > 0 {
		reported = f.reported
	}
	page := &integration.SearchPage{Total: reported, Raw: []byte("<page/>")}
	for i := start; i < end; i++ {
		page.Records = append(page.Records, &integration.OrderEnvelope{
			Marketplace: f.marketplace,
			Level:       integration.EnvelopeLevelSearch,
			OrderID:     orderID(i),
		})
	}
	return page, nil
}

func (f *fakeSource) GetOrderDetail(_ context.Context, req integration.DetailRequest) (*integration.DetailResult, error) {
	f.detailCalls = append(f.detailCalls, req)
	f.detailTimes = append(f.detailTimes, time.Now())
	if err, ok := f.detailErrs[req.OrderID]; ok {
		return nil, err
	}
	env, ok := f.details[req.OrderID]
	if !ok {
		return nil, integration.ErrPlatformInvalidResponse
	}
	return &integration.DetailResult{Envelope: env, Raw: []byte("<detail/>")}, nil
}

func orderID(i int) string {
	return "store-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(i >> 8), byte(i)}).String()[:8]
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

type memoryLines struct {
	lines []integration.OrderLine
	err   error
}

func (m *memoryLines) AppendBatch(_ context.Context, lines []integration.OrderLine) error {
	if m.err != nil {
		return m.err
	}
	m.lines = append(m.lines, lines...)
	return nil
}

func (m *memoryLines) FindByOrder(_ context.Context, shopCode, orderID string) ([]integration.OrderLine, error) {
	var out []integration.OrderLine
	for _, l := range m.lines {
		if l.ShopCode == shopCode && l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLines) CountByRun(_ context.Context, runID uuid.UUID) (int64, error) {
	var n int64
	for _, l := range m.lines {
		if l.RunID == runID {
			n++
		}
	}
	return n, nil
}

type memoryRuns struct {
	runs map[uuid.UUID]integration.IngestionRun
	last *integration.IngestionRun
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: make(map[uuid.UUID]integration.IngestionRun)}
}

func (m *memoryRuns) Create(_ context.Context, run *integration.IngestionRun) error {
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) Update(_ context.Context, run *integration.IngestionRun) error {
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) FindByID(_ context.Context, id uuid.UUID) (*integration.IngestionRun, error) {
	r, ok := m.runs[id]
	if !ok {
		return nil, integration.ErrCredentialMissing
	}
	return &r, nil
}

func (m *memoryRuns) FindRecent(_ context.Context, shopCode string, limit int) ([]integration.IngestionRun, error) {
	var out []integration.IngestionRun
	for _, r := range m.runs {
		if shopCode == "" || r.ShopCode == shopCode {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRuns) LastSucceeded(context.Context, string) (*integration.IngestionRun, error) {
	return m.last, nil
}
