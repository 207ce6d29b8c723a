package quota

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/quillwork/worksheets-backend/pkg/enums"
)

// Unlimited is the wire spelling of an unbounded limit or remaining count.
const Unlimited = "unlimited"

// Limit is either a bounded monthly allowance or unbounded. The zero value is Bounded(0).
type Limit struct {
	n         int64
	unbounded bool
}

// Bounded returns a finite limit; negative values clamp to zero.
func Bounded(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// Unbounded returns the limit for plans without a monthly cap.
func Unbounded() Limit {
	return Limit{unbounded: true}
}

func (l Limit) IsUnbounded() bool { return l.unbounded }

// Value returns the finite value; ok is false for unbounded limits.
func (l Limit) Value() (n int64, ok bool) {
	if l.unbounded {
		return 0, false
	}
	return l.n, true
}

// Remaining returns max(0, limit-used); unbounded limits stay unbounded.
func (l Limit) Remaining(used int64) Limit {
	if l.unbounded {
		return l
	}
	return Bounded(l.n - used)
}

// Positive reports whether at least one more unit fits.
func (l Limit) Positive() bool {
	return l.unbounded || l.n > 0
}

func (l Limit) String() string {
	if l.unbounded {
		return Unlimited
	}
	return strconv.FormatInt(l.n, 10)
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unbounded {
		return json.Marshal(Unlimited)
	}
	return []byte(strconv.FormatInt(l.n, 10)), nil
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != Unlimited {
			return fmt.Errorf("quota: unexpected limit %q", s)
		}
		*l = Unbounded()
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quota: decode limit: %w", err)
	}
	*l = Bounded(n)
	return nil
}

var planLimits = map[enums.SubscriptionPlan]Limit{
	enums.SubscriptionPlanFree:    Bounded(15),
	enums.SubscriptionPlanBasic:   Bounded(50),
	enums.SubscriptionPlanPro:     Unbounded(),
	enums.SubscriptionPlanPremium: Unbounded(),
}

// LimitFor returns the monthly export allowance for plan. Unknown plans get the free allowance.
func LimitFor(plan enums.SubscriptionPlan) Limit {
	if limit, ok := planLimits[plan]; ok {
		return limit
	}
	return planLimits[enums.SubscriptionPlanFree]
}
