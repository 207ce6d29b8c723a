package exports

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quillwork/worksheets-backend/internal/fingerprint"
	"github.com/quillwork/worksheets-backend/internal/quota"
	"github.com/quillwork/worksheets-backend/internal/usage"
	"github.com/quillwork/worksheets-backend/internal/worksheet"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/pagination"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// memoryLedger keeps records in memory and enforces (user, fingerprint) uniqueness.
type memoryLedger struct {
	mu       sync.Mutex
	records  []models.UsageRecord
	appends  int
	lookups  int
	countErr error
	// raceWinner, when set, is inserted right before the next Append to
	// simulate a concurrent request winning the insert.
	raceWinner *models.UsageRecord
}

func (m *memoryLedger) FindByUserAndFingerprint(_ context.Context, userID string, fp fingerprint.Fingerprint) (*models.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	return m.find(userID, fp.String()), nil
}

func (m *memoryLedger) find(userID, fp string) *models.UsageRecord {
	for i := range m.records {
		if m.records[i].UserID == userID && m.records[i].Fingerprint == fp {
			rec := m.records[i]
			return &rec
		}
	}
	return nil
}

func (m *memoryLedger) CountInPeriod(_ context.Context, userID string, start, end time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	var n int64
	for _, rec := range m.records {
		if rec.UserID == userID && !rec.CreatedAt.Before(start) && rec.CreatedAt.Before(end) {
			n++
		}
	}
	return n, nil
}

func (m *memoryLedger) Append(_ context.Context, userID string, fp fingerprint.Fingerprint, meta usage.Metadata) (*models.UsageRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.raceWinner != nil {
		m.records = append(m.records, *m.raceWinner)
		m.raceWinner = nil
	}
	if existing := m.find(userID, fp.String()); existing != nil {
		return existing, false, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, false, err
	}
	rec := models.UsageRecord{ID: uuid.New(), UserID: userID, Fingerprint: fp.String(), Metadata: raw, CreatedAt: fixedNow}
	m.records = append(m.records, rec)
	return &rec, true, nil
}

func (m *memoryLedger) History(_ context.Context, userID string, _ pagination.Params) (*usage.HistoryPage, error) {
	page := &usage.HistoryPage{}
	for _, rec := range m.records {
		if rec.UserID == userID {
			page.Items = append(page.Items, usage.HistoryItem{ExportID: rec.ID, Fingerprint: rec.Fingerprint})
		}
	}
	return page, nil
}

func (m *memoryLedger) seed(t *testing.T, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		m.records = append(m.records, models.UsageRecord{
			ID:          uuid.New(),
			UserID:      userID,
			Fingerprint: uuid.NewString(),
			CreatedAt:   fixedNow.Add(-time.Duration(i+1) * time.Minute),
		})
	}
}

type staticPlans struct {
	plan  enums.SubscriptionPlan
	err   error
	calls int
}

func (s *staticPlans) PlanFor(context.Context, string) (enums.SubscriptionPlan, error) {
	s.calls++
	return s.plan, s.err
}

type fakeProducer struct {
	calls   int
	err     error
	delay   time.Duration
	onCall  func()
	lastDoc *worksheet.Document
}

func (f *fakeProducer) Produce(ctx context.Context, userID string, fp fingerprint.Fingerprint, doc *worksheet.Document) (usage.URLs, error) {
	f.calls++
	f.lastDoc = doc
	if f.onCall != nil {
		f.onCall()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return usage.URLs{}, ctx.Err()
		}
	}
	if f.err != nil {
		return usage.URLs{}, f.err
	}
	base := "https://files.test/exports/" + userID + "/" + fp.String()
	return usage.URLs{Worksheet: base + "/worksheet.pdf", AnswerKey: base + "/answer-key.pdf"}, nil
}

type fixture struct {
	svc      Service
	ledger   *memoryLedger
	plans    *staticPlans
	producer *fakeProducer
}

func newFixture(t *testing.T, plan enums.SubscriptionPlan, timeout time.Duration) *fixture {
	t.Helper()
	ledger := &memoryLedger{}
	policy, err := quota.NewPolicy(quota.PolicyParams{
		Counter: ledger,
		Clock:   quota.ClockFunc(func() time.Time { return fixedNow }),
	})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	plans := &staticPlans{plan: plan}
	producer := &fakeProducer{}
	svc, err := NewService(ServiceParams{
		Ledger:        ledger,
		Quota:         policy,
		Plans:         plans,
		Producer:      producer,
		RenderTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &fixture{svc: svc, ledger: ledger, plans: plans, producer: producer}
}

func exportRequest(seed int) Request {
	raw, _ := json.Marshal(map[string]any{
		"subject":      "math",
		"problemTypes": []string{"addition", "subtraction"},
		"problemCount": 10,
		"seed":         seed,
	})
	return Request{Configuration: raw, Title: "Week 3"}
}

func TestExportCreatesAndReportsQuota(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)

	res, err := fx.svc.Export(context.Background(), "user-1", exportRequest(1))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s", res.Outcome)
	}
	if res.ExportID == uuid.Nil || res.URLs.Worksheet == "" {
		t.Fatalf("expected export id and urls, got %+v", res)
	}
	if res.Quota == nil || res.Quota.Used != 1 {
		t.Fatalf("expected used=1, got %+v", res.Quota)
	}
	if remaining, _ := res.Quota.Remaining.Value(); remaining != 14 {
		t.Fatalf("expected remaining=14, got %d", remaining)
	}
	if res.Quota.Period.String() != "2026-10" {
		t.Fatalf("unexpected period %s", res.Quota.Period)
	}
	if fx.producer.lastDoc == nil || fx.producer.lastDoc.Title != "Week 3" || len(fx.producer.lastDoc.Problems) != 10 {
		t.Fatalf("document not built from request: %+v", fx.producer.lastDoc)
	}
}

func TestExportSameConfigurationIsCached(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	ctx := context.Background()

	first, err := fx.svc.Export(ctx, "user-1", exportRequest(1))
	if err != nil {
		t.Fatalf("first export: %v", err)
	}
	second, err := fx.svc.Export(ctx, "user-1", exportRequest(1))
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if !second.Cached() {
		t.Fatalf("expected cached, got %s", second.Outcome)
	}
	if second.ExportID != first.ExportID || second.URLs != first.URLs {
		t.Fatalf("cached result differs: %+v vs %+v", second, first)
	}
	if second.Quota != nil {
		t.Fatalf("cached result must not carry quota")
	}
	if fx.producer.calls != 1 || fx.ledger.appends != 1 {
		t.Fatalf("expected one render and one append, got %d/%d", fx.producer.calls, fx.ledger.appends)
	}
	if fx.plans.calls != 1 {
		t.Fatalf("expected plan resolved once, got %d", fx.plans.calls)
	}

	status, err := fx.svc.Status(ctx, "user-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Used != 1 {
		t.Fatalf("expected used to stay 1, got %d", status.Used)
	}
}

func TestExportKeyOrderDoesNotDefeatDedup(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	ctx := context.Background()

	a := Request{Configuration: json.RawMessage(`{"subject":"math","seed":3,"problemTypes":["addition"]}`)}
	b := Request{Configuration: json.RawMessage(`{ "problemTypes": ["addition"], "seed": 3, "subject": "math" }`)}
	if _, err := fx.svc.Export(ctx, "user-1", a); err != nil {
		t.Fatalf("export a: %v", err)
	}
	res, err := fx.svc.Export(ctx, "user-1", b)
	if err != nil {
		t.Fatalf("export b: %v", err)
	}
	if !res.Cached() {
		t.Fatalf("expected reordered config to be cached, got %s", res.Outcome)
	}
}

func TestExportDeniedAtLimit(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	fx.ledger.seed(t, "user-1", 15)

	res, err := fx.svc.Export(context.Background(), "user-1", exportRequest(99))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Outcome != OutcomeDenied {
		t.Fatalf("expected denied, got %s", res.Outcome)
	}
	if !res.Quota.RequiresUpgrade || res.Quota.Used != 15 {
		t.Fatalf("unexpected decision %+v", res.Quota)
	}
	if remaining, _ := res.Quota.Remaining.Value(); remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", remaining)
	}
	if fx.producer.calls != 0 || fx.ledger.appends != 0 {
		t.Fatalf("denied export must not render or append")
	}
}

func TestExportDedupRunsBeforeQuota(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	ctx := context.Background()
	first, err := fx.svc.Export(ctx, "user-1", exportRequest(5))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	fx.ledger.seed(t, "user-1", 20)

	res, err := fx.svc.Export(ctx, "user-1", exportRequest(5))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Cached() || res.ExportID != first.ExportID {
		t.Fatalf("expected replay served from ledger while over quota, got %+v", res)
	}
}

func TestExportUnlimitedPlan(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanPro, time.Second)
	fx.ledger.seed(t, "user-1", 500)

	res, err := fx.svc.Export(context.Background(), "user-1", exportRequest(1))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s", res.Outcome)
	}
	if !res.Quota.Limit.IsUnbounded() || !res.Quota.Remaining.IsUnbounded() {
		t.Fatalf("expected unbounded quota, got %+v", res.Quota)
	}
	if res.Quota.Used != 501 {
		t.Fatalf("expected used 501, got %d", res.Quota.Used)
	}
}

func TestExportRenderFailureDoesNotCharge(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	fx.producer.err = errors.New("disk full")

	_, err := fx.svc.Export(context.Background(), "user-1", exportRequest(1))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if fx.ledger.appends != 0 {
		t.Fatalf("render failure must not append")
	}
}

func TestExportRenderTimeoutDoesNotCharge(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, 20*time.Millisecond)
	fx.producer.delay = time.Second

	_, err := fx.svc.Export(context.Background(), "user-1", exportRequest(1))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if pkgerrors.As(err).Message() != "rendering timed out" {
		t.Fatalf("unexpected message %q", pkgerrors.As(err).Message())
	}
	if fx.ledger.appends != 0 {
		t.Fatalf("timed out render must not append")
	}
}

func TestExportCanceledAfterRenderDoesNotCharge(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	fx.producer.onCall = cancel

	_, err := fx.svc.Export(ctx, "user-1", exportRequest(1))
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if fx.ledger.appends != 0 {
		t.Fatalf("canceled export must not append")
	}
}

func TestExportRaceResolvesToCached(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	req := exportRequest(1)
	fp, err := fingerprint.FromJSON(req.Configuration)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	winnerMeta, _ := json.Marshal(usage.Metadata{URLs: usage.URLs{Worksheet: "https://winner/ws.pdf"}})
	winner := &models.UsageRecord{ID: uuid.New(), UserID: "user-1", Fingerprint: fp.String(), Metadata: winnerMeta, CreatedAt: fixedNow}
	fx.ledger.raceWinner = winner

	res, err := fx.svc.Export(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !res.Cached() || res.ExportID != winner.ID {
		t.Fatalf("expected winner's record, got %+v", res)
	}
	if res.URLs.Worksheet != "https://winner/ws.pdf" {
		t.Fatalf("expected winner's urls, got %+v", res.URLs)
	}
	if len(fx.ledger.records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(fx.ledger.records))
	}
}

func TestExportRejectsInvalidConfigurationBeforeLookup(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)

	_, err := fx.svc.Export(context.Background(), "user-1", Request{Configuration: json.RawMessage(`{"subject":"math","problemTypes":[]}`)})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fx.ledger.lookups != 0 {
		t.Fatalf("invalid configuration must not reach the ledger")
	}
}

func TestExportRequiresUser(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	if _, err := fx.svc.Export(context.Background(), " ", exportRequest(1)); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := fx.svc.Status(context.Background(), ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestStatusCountErrorSurfacesForBoundedPlan(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanBasic, time.Second)
	fx.ledger.countErr = errors.New("db down")
	if _, err := fx.svc.Status(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHistoryPassesThrough(t *testing.T) {
	fx := newFixture(t, enums.SubscriptionPlanFree, time.Second)
	if _, err := fx.svc.Export(context.Background(), "user-1", exportRequest(1)); err != nil {
		t.Fatalf("export: %v", err)
	}
	page, err := fx.svc.History(context.Background(), "user-1", pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
}
