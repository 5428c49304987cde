package billing

import (
	"sort"
	"strings"
)

// Plan is a server-side subscription price point. Prices and periods are
// never taken from client input.
type Plan struct {
	Code      string
	AmountJPY int64
	Period    string
}

const (
	PlanMonthly      = "monthly"
	PlanSixMonths    = "6months"
	PeriodMonthly    = "monthly"
	PeriodSemiannual = "semiannually"
)

var plans = map[string]Plan{
	PlanMonthly:   {Code: PlanMonthly, AmountJPY: 10000, Period: PeriodMonthly},
	PlanSixMonths: {Code: PlanSixMonths, AmountJPY: 58000, Period: PeriodSemiannual},
}

func normalizePlan(plan string) string {
	return strings.ToLower(strings.TrimSpace(plan))
}

// LookupPlan resolves a plan code, case-insensitively.
func LookupPlan(code string) (Plan, bool) {
	p, ok := plans[normalizePlan(code)]
	return p, ok
}

// PlanCodes returns the known plan codes in a stable order.
func PlanCodes() []string {
	codes := make([]string, 0, len(plans))
	for code := range plans {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// isSettlingStatus reports whether a charge status may still change without
// further action from the customer.
func isSettlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "pending", "awaiting":
		return true
	default:
		return false
	}
}
