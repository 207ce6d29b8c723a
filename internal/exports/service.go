package exports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quillwork/worksheets-backend/internal/fingerprint"
	"github.com/quillwork/worksheets-backend/internal/quota"
	"github.com/quillwork/worksheets-backend/internal/usage"
	"github.com/quillwork/worksheets-backend/internal/worksheet"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/quillwork/worksheets-backend/pkg/metrics"
	"github.com/quillwork/worksheets-backend/pkg/pagination"
)

const defaultRenderTimeout = 60 * time.Second

// Ledger is the subset of the usage ledger the orchestrator touches.
type Ledger interface {
	FindByUserAndFingerprint(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*models.UsageRecord, error)
	Append(ctx context.Context, userID string, fp fingerprint.Fingerprint, meta usage.Metadata) (*models.UsageRecord, bool, error)
	History(ctx context.Context, userID string, params pagination.Params) (*usage.HistoryPage, error)
}

// QuotaEvaluator admits or denies one more export.
type QuotaEvaluator interface {
	Evaluate(ctx context.Context, userID string, plan enums.SubscriptionPlan) (quota.Decision, error)
}

// PlanResolver reads the plan a user is currently entitled to.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (enums.SubscriptionPlan, error)
}

// Producer renders a document and publishes its artifacts.
type Producer interface {
	Produce(ctx context.Context, userID string, fp fingerprint.Fingerprint, doc *worksheet.Document) (usage.URLs, error)
}

// Service runs the export state machine: fingerprint, dedup lookup, quota,
// render, then ledger append.
type Service interface {
	Export(ctx context.Context, userID string, req Request) (*Result, error)
	Status(ctx context.Context, userID string) (quota.Decision, error)
	History(ctx context.Context, userID string, params pagination.Params) (*usage.HistoryPage, error)
}

type ServiceParams struct {
	Ledger        Ledger
	Quota         QuotaEvaluator
	Plans         PlanResolver
	Producer      Producer
	RenderTimeout time.Duration
	Metrics       *metrics.ExportMetrics
	Logger        *logger.Logger
}

type service struct {
	ledger        Ledger
	quota         QuotaEvaluator
	plans         PlanResolver
	producer      Producer
	renderTimeout time.Duration
	metrics       *metrics.ExportMetrics
	logg          *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("usage ledger required")
	}
	if params.Quota == nil {
		return nil, fmt.Errorf("quota evaluator required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan resolver required")
	}
	if params.Producer == nil {
		return nil, fmt.Errorf("producer required")
	}
	timeout := params.RenderTimeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		ledger:        params.Ledger,
		quota:         params.Quota,
		plans:         params.Plans,
		producer:      params.Producer,
		renderTimeout: timeout,
		metrics:       params.Metrics,
		logg:          logg,
	}, nil
}

func (s *service) Export(ctx context.Context, userID string, req Request) (*Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	cfg, err := worksheet.ParseConfiguration(req.Configuration)
	if err != nil {
		return nil, err
	}
	fp, err := fingerprint.FromJSON(req.Configuration)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "configuration cannot be fingerprinted")
	}
	ctx = s.logg.WithFingerprint(s.logg.WithUserID(ctx, userID), fp.String())

	existing, err := s.ledger.FindByUserAndFingerprint(ctx, userID, fp)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.cached(ctx, existing, "")
	}

	plan, err := s.plans.PlanFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	decision, err := s.quota.Evaluate(ctx, userID, plan)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event": "export.denied",
			"plan":  decision.Plan.String(),
			"used":  decision.Used,
		}), "export denied by quota")
		s.metrics.IncOutcome(OutcomeDenied.String(), decision.Plan.String())
		return &Result{Outcome: OutcomeDenied, Quota: &decision}, nil
	}

	doc := worksheet.BuildDocument(cfg, worksheet.Header{
		Title:        req.Title,
		Subtitle:     req.Subtitle,
		Instructions: req.Instructions,
	})
	urls, err := s.render(ctx, userID, fp, doc)
	if err != nil {
		s.fail(ctx, decision.Plan, err)
		return nil, err
	}
	// a disconnected client must not be charged for an export it never receives
	if err := ctx.Err(); err != nil {
		s.fail(ctx, decision.Plan, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "export canceled before it was recorded")
	}

	record, created, err := s.ledger.Append(ctx, userID, fp, usage.Metadata{
		URLs:          urls,
		Title:         doc.Title,
		ProblemCount:  len(doc.Problems),
		Configuration: req.Configuration,
	})
	if err != nil {
		s.fail(ctx, decision.Plan, err)
		return nil, err
	}
	if !created {
		return s.cached(ctx, record, "concurrent request recorded the export first")
	}

	after := decision.AfterExport()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event":     "export.created",
		"export_id": record.ID.String(),
		"plan":      after.Plan.String(),
		"used":      after.Used,
	}), "export created")
	s.metrics.IncOutcome(OutcomeCreated.String(), after.Plan.String())
	return &Result{Outcome: OutcomeCreated, ExportID: record.ID, URLs: urls, Quota: &after}, nil
}

func (s *service) render(ctx context.Context, userID string, fp fingerprint.Fingerprint, doc *worksheet.Document) (usage.URLs, error) {
	renderCtx, cancel := context.WithTimeout(ctx, s.renderTimeout)
	defer cancel()

	start := time.Now()
	urls, err := s.producer.Produce(renderCtx, userID, fp, doc)
	s.metrics.ObserveRender(time.Since(start), err == nil)
	if err == nil {
		return urls, nil
	}
	switch {
	case ctx.Err() != nil:
		return usage.URLs{}, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "export canceled during rendering")
	case errors.Is(renderCtx.Err(), context.DeadlineExceeded):
		return usage.URLs{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rendering timed out").
			WithDetails(map[string]any{"timeoutSeconds": s.renderTimeout.Seconds()})
	default:
		return usage.URLs{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rendering failed")
	}
}

func (s *service) cached(ctx context.Context, record *models.UsageRecord, reason string) (*Result, error) {
	meta, err := usage.DecodeMetadata(record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cached export")
	}
	fields := map[string]any{
		"event":     "export.cached",
		"export_id": record.ID.String(),
	}
	if reason != "" {
		fields["reason"] = reason
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "export served from ledger")
	s.metrics.IncOutcome(OutcomeCached.String(), "")
	return &Result{Outcome: OutcomeCached, ExportID: record.ID, URLs: meta.URLs}, nil
}

func (s *service) fail(ctx context.Context, plan enums.SubscriptionPlan, err error) {
	s.logg.Error(s.logg.WithField(ctx, "event", "export.failed"), "export failed", err)
	s.metrics.IncOutcome("failed", plan.String())
}

// Status reports the caller's quota without side effects.
func (s *service) Status(ctx context.Context, userID string) (quota.Decision, error) {
	if strings.TrimSpace(userID) == "" {
		return quota.Decision{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	plan, err := s.plans.PlanFor(ctx, userID)
	if err != nil {
		return quota.Decision{}, err
	}
	return s.quota.Evaluate(ctx, userID, plan)
}

func (s *service) History(ctx context.Context, userID string, params pagination.Params) (*usage.HistoryPage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	return s.ledger.History(ctx, userID, params)
}
