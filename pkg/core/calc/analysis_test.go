package calc

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func floatPtr(v float64) *float64 {
	return &v
}

func approx(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s: expected %v, got nil", name, want)
		return
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("%s: expected %v, got %v", name, want, *got)
	}
}

func TestROEIsPercentScaled(t *testing.T) {
	b := Base{NetIncomeLoss: floatPtr(15), StockholdersEquity: floatPtr(100)}
	approx(t, "ROE", ROE(b), 15.0)
}

func TestEPSFallsBackToNetIncomeOverShares(t *testing.T) {
	b := Base{
		EPSDiluted:    nil,
		EPSBasic:      nil,
		NetIncomeLoss: floatPtr(1_000_000),
		SharesDiluted: floatPtr(500_000),
	}
	approx(t, "EPS", EPS(b), 2.0)

	// Basic shares only when diluted is missing.
	b = Base{NetIncomeLoss: floatPtr(900), SharesBasic: floatPtr(300)}
	approx(t, "EPS basic shares", EPS(b), 3.0)

	// Reported EPS wins over the derived figure.
	b = Base{EPSBasic: floatPtr(1.5), NetIncomeLoss: floatPtr(1_000_000), SharesDiluted: floatPtr(500_000)}
	approx(t, "EPS reported", EPS(b), 1.5)

	b = Base{EPSContinuingBasic: floatPtr(0.7)}
	approx(t, "EPS continuing ops", EPS(b), 0.7)
}

func TestPFCF(t *testing.T) {
	b := Base{CFO: floatPtr(300), CapEx: floatPtr(100), SharesDiluted: floatPtr(50)}
	approx(t, "P/FCF", PFCF(b, Prices{Explicit: floatPtr(20)}), 5.0)

	// Continuing-ops CFO is preferred.
	b[CFOContinuing] = floatPtr(200)
	approx(t, "P/FCF continuing", PFCF(b, Prices{Explicit: floatPtr(20)}), 10.0)

	delete(b, CapEx)
	if got := PFCF(b, Prices{Explicit: floatPtr(20)}); got != nil {
		t.Errorf("expected nil P/FCF without CapEx, got %v", *got)
	}
}

func TestPCF(t *testing.T) {
	b := Base{CFO: floatPtr(300), SharesBasic: floatPtr(100)}
	approx(t, "P/CF", PCF(b, Prices{Market: floatPtr(30)}), 10.0)
	if got := PCF(b, Prices{}); got != nil {
		t.Errorf("expected nil P/CF without price, got %v", *got)
	}
}

func TestPEPriceSource(t *testing.T) {
	b := Base{EPSDiluted: floatPtr(4)}
	approx(t, "P/E explicit", PE(b, Prices{Explicit: floatPtr(100), Market: floatPtr(80)}), 25.0)
	approx(t, "P/E market", PE(b, Prices{Market: floatPtr(80)}), 20.0)
	if got := PE(Base{}, Prices{Explicit: floatPtr(100)}); got != nil {
		t.Errorf("expected nil P/E without EPS, got %v", *got)
	}
}

func TestFirstFoundPriority(t *testing.T) {
	b := Base{"A": nil, "B": floatPtr(5), "C": floatPtr(7)}
	approx(t, "First", First(b, "A", "B", "C"), 5)

	b = Base{
		SalesRevenueNet: nil,
		Revenues:        floatPtr(200),
		ContractRevenue: floatPtr(400),
		PretaxIncome:    floatPtr(50),
	}
	approx(t, "PretaxMargin", PretaxMargin(b), 25.0)
}

func TestDebtToEquity(t *testing.T) {
	tests := []struct {
		name string
		base Base
		want *float64
	}{
		{
			name: "reported total",
			base: Base{TotalDebt: floatPtr(50), DebtCurrent: floatPtr(1000), StockholdersEquity: floatPtr(100)},
			want: floatPtr(0.5),
		},
		{
			name: "sum of present components",
			base: Base{DebtCurrent: floatPtr(10), CommercialPaper: floatPtr(30), StockholdersEquity: floatPtr(200)},
			want: floatPtr(0.2),
		},
		{
			name: "no debt figure",
			base: Base{StockholdersEquity: floatPtr(100)},
			want: nil,
		},
		{
			name: "components all null",
			base: Base{DebtCurrent: nil, DebtNoncurrent: nil, StockholdersEquity: floatPtr(100)},
			want: nil,
		},
		{
			name: "zero equity",
			base: Base{TotalDebt: floatPtr(50), StockholdersEquity: floatPtr(0)},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DebtToEquity(tt.base)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %v", *got)
				}
				return
			}
			approx(t, tt.name, got, *tt.want)
		})
	}
}

func TestRatiosAreNullSafe(t *testing.T) {
	bases := []Base{
		nil,
		{},
		{NetIncomeLoss: floatPtr(10), StockholdersEquity: floatPtr(0), SharesDiluted: floatPtr(0), SharesBasic: floatPtr(0)},
		{NetIncomeLoss: floatPtr(math.NaN()), StockholdersEquity: floatPtr(math.Inf(1))},
		{CFO: floatPtr(100), CapEx: floatPtr(100), SharesDiluted: floatPtr(10)},
	}
	prices := []Prices{{}, {Explicit: floatPtr(10)}, {Market: floatPtr(0)}}

	for _, b := range bases {
		for _, p := range prices {
			got, err := Compute(Names(), b, p)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			for name, v := range got {
				if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
					t.Errorf("%s: non-finite result %v for base %v", name, *v, b)
				}
			}
		}
	}

	// Zero free cash flow is a zero denominator.
	b := Base{CFO: floatPtr(100), CapEx: floatPtr(100), SharesDiluted: floatPtr(10)}
	if got := PFCF(b, Prices{Explicit: floatPtr(10)}); got != nil {
		t.Errorf("expected nil P/FCF on zero free cash flow, got %v", *got)
	}
}

func TestSafeDiv(t *testing.T) {
	if SafeDiv(nil, floatPtr(1)) != nil || SafeDiv(floatPtr(1), nil) != nil || SafeDiv(floatPtr(1), floatPtr(0)) != nil {
		t.Error("expected nil for nil or zero operands")
	}
	approx(t, "SafeDiv", SafeDiv(floatPtr(0), floatPtr(4)), 0)
}

func TestComputeAndRegistry(t *testing.T) {
	if _, err := Compute([]string{RatioROE, "Sharpe"}, Base{}, Prices{}); !errors.Is(err, ErrUnknownRatio) {
		t.Fatalf("expected ErrUnknownRatio, got %v", err)
	}

	b := Base{NetIncomeLoss: floatPtr(15), StockholdersEquity: floatPtr(100)}
	got, err := Compute([]string{RatioROE, RatioPE}, b, Prices{Explicit: floatPtr(10)})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	want := map[string]*float64{RatioROE: floatPtr(15), RatioPE: nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compute mismatch (-want +got):\n%s", diff)
	}

	concepts, err := RequiredConcepts([]string{RatioROE, RatioEPS})
	if err != nil {
		t.Fatalf("RequiredConcepts: %v", err)
	}
	wantConcepts := []string{
		NetIncomeLoss, StockholdersEquity,
		EPSDiluted, EPSBasic, EPSContinuingDiluted, EPSContinuingBasic,
		SharesDiluted, SharesBasic,
	}
	if diff := cmp.Diff(wantConcepts, concepts); diff != "" {
		t.Errorf("RequiredConcepts mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{RatioPE, RatioPB}, PriceDependent([]string{RatioROE, RatioPE, RatioPB})); diff != "" {
		t.Errorf("PriceDependent mismatch (-want +got):\n%s", diff)
	}
}

func TestHumanFormat(t *testing.T) {
	tests := map[float64]string{
		1234:          "1.23K",
		250000000:     "250.00M",
		540000000000:  "540.00B",
		1200000000000: "1.20T",
		-2500000:      "-2.50M",
		12.5:          "12.50",
	}
	for in, want := range tests {
		if got := HumanFormat(in); got != want {
			t.Errorf("HumanFormat(%v) = %q, want %q", in, got, want)
		}
	}
	if FormatOptional(nil) != "" {
		t.Error("nil must render blank")
	}
}
