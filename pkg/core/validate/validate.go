// Package validate runs integrity checks over resolved base values. A failed
// check does not reject a snapshot; it flags values that were likely read
// from the wrong row or column.
package validate

import (
	"fmt"
	"math"
	"sort"

	"filing_screener/pkg/core/calc"
)

// DefaultTolerance is the relative difference accepted by the equation
// checks. Filers round statement lines, so totals rarely add up exactly.
const DefaultTolerance = 0.01

// Concepts lists the base values the checks read, beyond what the ratios
// already resolve.
var Concepts = []string{
	calc.Assets,
	calc.Liabilities,
	calc.LiabilitiesEquity,
	calc.StockholdersEquity,
	calc.AssetsCurrent,
	calc.LiabilitiesCurrent,
}

// Check names.
const (
	CheckBalance        = "balance_equation"
	CheckTotals         = "liabilities_and_equity_total"
	CheckCurrentAssets  = "current_assets_bound"
	CheckCurrentLiabs   = "current_liabilities_bound"
	CheckNegativeAssets = "negative_assets"
	CheckValueChange    = "value_change"
)

// Finding is one failed check.
type Finding struct {
	Check   string  `json:"check"`
	Message string  `json:"message"`
	Delta   float64 `json:"delta,omitempty"`
}

func (f Finding) String() string {
	return f.Check + ": " + f.Message
}

// =============================================================================
// BALANCE SHEET EQUATIONS
// =============================================================================

// BalanceCheck verifies Assets = Liabilities + Equity.
type BalanceCheck struct {
	TotalAssets      float64
	TotalLiabilities float64
	TotalEquity      float64
	ComputedAssets   float64 // L + E
	Difference       float64
	IsBalanced       bool
	Tolerance        float64
}

// CheckBalanceEquation validates A = L + E within a relative tolerance of
// the assets total.
func CheckBalanceEquation(assets, liabilities, equity, tolerance float64) *BalanceCheck {
	computed := liabilities + equity
	diff := assets - computed

	return &BalanceCheck{
		TotalAssets:      assets,
		TotalLiabilities: liabilities,
		TotalEquity:      equity,
		ComputedAssets:   computed,
		Difference:       diff,
		IsBalanced:       withinTolerance(diff, assets, tolerance),
		Tolerance:        tolerance,
	}
}

func withinTolerance(diff, total, tolerance float64) bool {
	scale := math.Abs(total)
	if scale == 0 {
		return diff == 0
	}
	return math.Abs(diff)/scale <= tolerance
}

// Integrity runs every check whose inputs are present in b. Checks with a
// missing input are skipped, not failed. Findings are ordered by check name.
func Integrity(b calc.Base, tolerance float64) []Finding {
	var out []Finding
	assets := b.Get(calc.Assets)

	if assets != nil && *assets < 0 {
		out = append(out, Finding{
			Check:   CheckNegativeAssets,
			Message: fmt.Sprintf("total assets %s are negative", calc.HumanFormat(*assets)),
		})
	}

	liabs, equity := b.Get(calc.Liabilities), b.Get(calc.StockholdersEquity)
	if assets != nil && liabs != nil && equity != nil {
		bc := CheckBalanceEquation(*assets, *liabs, *equity, tolerance)
		if !bc.IsBalanced {
			out = append(out, Finding{
				Check: CheckBalance,
				Message: fmt.Sprintf("assets %s differ from liabilities + equity %s",
					calc.HumanFormat(bc.TotalAssets), calc.HumanFormat(bc.ComputedAssets)),
				Delta: bc.Difference,
			})
		}
	}

	// The "total liabilities and equity" line must repeat total assets.
	if total := b.Get(calc.LiabilitiesEquity); assets != nil && total != nil {
		diff := *assets - *total
		if !withinTolerance(diff, *assets, tolerance) {
			out = append(out, Finding{
				Check: CheckTotals,
				Message: fmt.Sprintf("assets %s differ from liabilities and equity total %s",
					calc.HumanFormat(*assets), calc.HumanFormat(*total)),
				Delta: diff,
			})
		}
	}

	if cur := b.Get(calc.AssetsCurrent); cur != nil && assets != nil && *cur > *assets*(1+tolerance) {
		out = append(out, Finding{
			Check: CheckCurrentAssets,
			Message: fmt.Sprintf("current assets %s exceed total assets %s",
				calc.HumanFormat(*cur), calc.HumanFormat(*assets)),
			Delta: *cur - *assets,
		})
	}
	if cur := b.Get(calc.LiabilitiesCurrent); cur != nil && liabs != nil && *cur > *liabs*(1+tolerance) {
		out = append(out, Finding{
			Check: CheckCurrentLiabs,
			Message: fmt.Sprintf("current liabilities %s exceed total liabilities %s",
				calc.HumanFormat(*cur), calc.HumanFormat(*liabs)),
			Delta: *cur - *liabs,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Check < out[j].Check })
	return out
}

// =============================================================================
// PERIOD-OVER-PERIOD CHANGES
// =============================================================================

// CalculateChange returns the percentage change from prior to current.
func CalculateChange(current, prior float64) float64 {
	if prior == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return (current - prior) / math.Abs(prior) * 100
}

// OutlierCheck identifies suspicious period-over-period changes.
type OutlierCheck struct {
	Item       string
	Value      float64
	PriorValue float64
	ChangePct  float64
	IsOutlier  bool
	Reason     string
	Threshold  float64
}

// CheckForOutlier flags a value that dropped to zero or moved by more than
// thresholdPct percent.
func CheckForOutlier(item string, current, prior, thresholdPct float64) *OutlierCheck {
	changePct := CalculateChange(current, prior)

	check := &OutlierCheck{
		Item:       item,
		Value:      current,
		PriorValue: prior,
		ChangePct:  changePct,
		Threshold:  thresholdPct,
	}

	// Zero after a non-zero prior is usually a row matched to a blank column.
	if current == 0 && prior != 0 {
		check.IsOutlier = true
		check.Reason = "value dropped to zero"
		return check
	}
	if math.Abs(changePct) > thresholdPct {
		check.IsOutlier = true
		check.Reason = fmt.Sprintf("change of %.1f%% exceeds threshold of %.1f%%", changePct, thresholdPct)
	}
	return check
}

// Changes compares the concepts present in both current and prior and
// reports those that moved by more than thresholdPct.
func Changes(current, prior calc.Base, thresholdPct float64) []Finding {
	concepts := make([]string, 0, len(current))
	for c := range current {
		concepts = append(concepts, c)
	}
	sort.Strings(concepts)

	var out []Finding
	for _, c := range concepts {
		cur, pri := current.Get(c), prior.Get(c)
		if cur == nil || pri == nil {
			continue
		}
		oc := CheckForOutlier(c, *cur, *pri, thresholdPct)
		if oc.IsOutlier {
			out = append(out, Finding{
				Check:   CheckValueChange,
				Message: c + ": " + oc.Reason,
				Delta:   *cur - *pri,
			})
		}
	}
	return out
}
