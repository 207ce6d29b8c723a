package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/logger"
)

// Counter reports how many exports a user completed in [start, end).
type Counter interface {
	CountInPeriod(ctx context.Context, userID string, start, end time.Time) (int64, error)
}

// Decision is the outcome of one admission check. It is never cached.
type Decision struct {
	Allowed         bool
	Used            int64
	Limit           Limit
	Remaining       Limit
	Plan            enums.SubscriptionPlan
	Period          Period
	RequiresUpgrade bool
}

// View is the wire shape of a decision.
type View struct {
	Used          int64                  `json:"used"`
	Limit         Limit                  `json:"limit"`
	Remaining     Limit                  `json:"remaining"`
	Plan          enums.SubscriptionPlan `json:"plan"`
	CurrentPeriod Period                 `json:"currentPeriod"`
}

func (d Decision) View() View {
	return View{
		Used:          d.Used,
		Limit:         d.Limit,
		Remaining:     d.Remaining,
		Plan:          d.Plan,
		CurrentPeriod: d.Period,
	}
}

// AfterExport returns the decision as it stands once one more export has been recorded.
func (d Decision) AfterExport() Decision {
	next := d
	next.Used = d.Used + 1
	next.Remaining = d.Limit.Remaining(next.Used)
	next.Allowed = next.Remaining.Positive()
	next.RequiresUpgrade = !next.Allowed
	return next
}

// PolicyParams configures a Policy.
type PolicyParams struct {
	Counter Counter
	Clock   Clock
	Logger  *logger.Logger
}

// Policy maps plans to limits and admits or denies exports.
type Policy struct {
	counter Counter
	clock   Clock
	logg    *logger.Logger
}

func NewPolicy(params PolicyParams) (*Policy, error) {
	if params.Counter == nil {
		return nil, fmt.Errorf("usage counter required")
	}
	clock := params.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &Policy{counter: params.Counter, clock: clock, logg: params.Logger}, nil
}

// CurrentPeriod reads the clock on every call so month rollover needs no restart.
func (p *Policy) CurrentPeriod() Period {
	return PeriodOf(p.clock.Now())
}

// Evaluate decides whether userID on plan may perform one more export this period.
func (p *Policy) Evaluate(ctx context.Context, userID string, plan enums.SubscriptionPlan) (Decision, error) {
	if strings.TrimSpace(userID) == "" {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !plan.IsValid() {
		plan = enums.SubscriptionPlanFree
	}

	period := p.CurrentPeriod()
	limit := LimitFor(plan)
	decision := Decision{Limit: limit, Plan: plan, Period: period}

	used, err := p.counter.CountInPeriod(ctx, userID, period.Start(), period.End())
	if limit.IsUnbounded() {
		if err != nil {
			p.warn(ctx, userID, err)
			used = 0
		}
		decision.Used = used
		decision.Remaining = limit
		decision.Allowed = true
		return decision, nil
	}
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count usage in period")
	}

	decision.Used = used
	decision.Remaining = limit.Remaining(used)
	decision.Allowed = decision.Remaining.Positive()
	decision.RequiresUpgrade = !decision.Allowed
	return decision, nil
}

func (p *Policy) warn(ctx context.Context, userID string, err error) {
	if p.logg == nil {
		return
	}
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"user_id": userID,
		"error":   err.Error(),
	})
	p.logg.Warn(logCtx, "quota.count_unavailable")
}
