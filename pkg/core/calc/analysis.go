package calc

import (
	"math"
)

// =============================================================================
// PROFITABILITY
// =============================================================================

// ROE = Net Income / Stockholders' Equity, as a percentage.
func ROE(b Base) *float64 {
	return scale(SafeDiv(b.Get(NetIncomeLoss), b.Get(StockholdersEquity)), 100)
}

// PretaxMargin = Pretax Income / Revenue, as a percentage.
// Revenue: net sales -> revenues -> contract revenue.
func PretaxMargin(b Base) *float64 {
	return scale(SafeDiv(b.Get(PretaxIncome), First(b, RevenueChain...)), 100)
}

// =============================================================================
// PER-SHARE
// =============================================================================

// EPS returns reported EPS (diluted -> basic -> continuing-ops diluted ->
// continuing-ops basic), else Net Income over diluted shares, else over basic
// shares.
func EPS(b Base) *float64 {
	if eps := First(b, EPSChain...); eps != nil {
		return eps
	}
	for _, shares := range SharesChain {
		if eps := SafeDiv(b.Get(NetIncomeLoss), b.Get(shares)); eps != nil {
			return eps
		}
	}
	return nil
}

// operatingCashFlow prefers continuing-ops CFO over total CFO.
func operatingCashFlow(b Base) *float64 {
	return First(b, CFOChain...)
}

// FreeCashFlow = CFO - CapEx.
func FreeCashFlow(b Base) *float64 {
	cfo, capex := operatingCashFlow(b), b.Get(CapEx)
	if !usable(cfo) || !usable(capex) {
		return nil
	}
	return ptr(*cfo - *capex)
}

// =============================================================================
// PRICE MULTIPLES
// =============================================================================

// PE = Price / EPS.
func PE(b Base, p Prices) *float64 {
	return SafeDiv(p.Value(), EPS(b))
}

// PFCF = Price / (Free Cash Flow / Shares).
func PFCF(b Base, p Prices) *float64 {
	return SafeDiv(p.Value(), SafeDiv(FreeCashFlow(b), First(b, SharesChain...)))
}

// PCF = Price / (CFO / Shares).
func PCF(b Base, p Prices) *float64 {
	return SafeDiv(p.Value(), SafeDiv(operatingCashFlow(b), First(b, SharesChain...)))
}

// PB = Price / (Equity / Shares).
func PB(b Base, p Prices) *float64 {
	return SafeDiv(p.Value(), SafeDiv(b.Get(StockholdersEquity), First(b, SharesChain...)))
}

// =============================================================================
// LEVERAGE & LIQUIDITY
// =============================================================================

// Debt returns the reported total debt tag, else the sum of whichever debt
// components are present. With no component present the result is nil, not 0.
func Debt(b Base) *float64 {
	if total := b.Get(TotalDebt); usable(total) {
		return total
	}
	var sum float64
	found := false
	for _, part := range DebtParts {
		if v := b.Get(part); usable(v) {
			sum += *v
			found = true
		}
	}
	if !found {
		return nil
	}
	return ptr(sum)
}

// DebtToEquity = Total Debt / Stockholders' Equity.
func DebtToEquity(b Base) *float64 {
	return SafeDiv(Debt(b), b.Get(StockholdersEquity))
}

// CurrentRatio = Current Assets / Current Liabilities.
func CurrentRatio(b Base) *float64 {
	return SafeDiv(b.Get(AssetsCurrent), b.Get(LiabilitiesCurrent))
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// SafeDiv divides n by d. A nil operand, a zero denominator or a non-finite
// result yields nil.
func SafeDiv(n, d *float64) *float64 {
	if !usable(n) || !usable(d) || *d == 0 {
		return nil
	}
	q := *n / *d
	if math.IsInf(q, 0) || math.IsNaN(q) {
		return nil
	}
	return &q
}

// First returns the first usable value along chain.
func First(b Base, chain ...string) *float64 {
	for _, concept := range chain {
		if v := b.Get(concept); usable(v) {
			return v
		}
	}
	return nil
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return ptr(*v * factor)
}

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func ptr(v float64) *float64 {
	return &v
}
