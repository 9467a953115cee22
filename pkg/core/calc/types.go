// Package calc is the ratio engine: pure, null-safe functions from resolved
// base values (and an optional market price) to financial ratios.
package calc

// =============================================================================
// CANONICAL CONCEPTS
// Tags match the defref annotations EDGAR emits on statement rows.
// =============================================================================

const (
	NetIncomeLoss      = "us-gaap_NetIncomeLoss"
	StockholdersEquity = "us-gaap_StockholdersEquity"
	Assets             = "us-gaap_Assets"
	AssetsCurrent      = "us-gaap_AssetsCurrent"
	LiabilitiesCurrent = "us-gaap_LiabilitiesCurrent"
	Liabilities        = "us-gaap_Liabilities"
	LiabilitiesEquity  = "us-gaap_LiabilitiesAndStockholdersEquity"

	// Per-share earnings, most preferred first.
	EPSDiluted           = "us-gaap_EarningsPerShareDiluted"
	EPSBasic             = "us-gaap_EarningsPerShareBasic"
	EPSContinuingDiluted = "us-gaap_IncomeLossFromContinuingOperationsPerDilutedShare"
	EPSContinuingBasic   = "us-gaap_IncomeLossFromContinuingOperationsPerBasicShare"

	SharesDiluted = "us-gaap_WeightedAverageNumberOfDilutedSharesOutstanding"
	SharesBasic   = "us-gaap_WeightedAverageNumberOfSharesOutstandingBasic"

	CFOContinuing = "us-gaap_NetCashProvidedByUsedInOperatingActivitiesContinuingOperations"
	CFO           = "us-gaap_NetCashProvidedByUsedInOperatingActivities"
	CapEx         = "us-gaap_PaymentsToAcquirePropertyPlantAndEquipment"

	TotalDebt           = "us-gaap_DebtLongtermAndShorttermCombinedAmount"
	DebtCurrent         = "us-gaap_LongTermDebtCurrent"
	DebtNoncurrent      = "us-gaap_LongTermDebtNoncurrent"
	ShortTermBorrowings = "us-gaap_ShortTermBorrowings"
	CommercialPaper     = "us-gaap_CommercialPaper"

	PretaxIncome    = "us-gaap_IncomeLossFromContinuingOperationsBeforeIncomeTaxesExtraordinaryItemsNoncontrollingInterest"
	SalesRevenueNet = "us-gaap_SalesRevenueNet"
	Revenues        = "us-gaap_Revenues"
	ContractRevenue = "us-gaap_RevenueFromContractWithCustomerExcludingAssessedTax"
)

// Fallback chains, tried in order; the first non-nil value wins.
var (
	EPSChain     = []string{EPSDiluted, EPSBasic, EPSContinuingDiluted, EPSContinuingBasic}
	SharesChain  = []string{SharesDiluted, SharesBasic}
	CFOChain     = []string{CFOContinuing, CFO}
	RevenueChain = []string{SalesRevenueNet, Revenues, ContractRevenue}
	DebtParts    = []string{DebtCurrent, DebtNoncurrent, ShortTermBorrowings, CommercialPaper}
)

// Base maps a canonical concept to its resolved value; nil means missing.
type Base map[string]*float64

// Get returns the value for concept, nil when absent.
func (b Base) Get(concept string) *float64 {
	if b == nil {
		return nil
	}
	return b[concept]
}

// Prices carries the price inputs of price-based ratios. Explicit is a price
// passed by the caller; Market is the previously sampled market price stored
// with the snapshot.
type Prices struct {
	Explicit *float64
	Market   *float64
}

// Value returns the explicit price, else the market price.
func (p Prices) Value() *float64 {
	if usable(p.Explicit) {
		return p.Explicit
	}
	if usable(p.Market) {
		return p.Market
	}
	return nil
}
