package calc

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownRatio is returned for a ratio name with no definition.
var ErrUnknownRatio = errors.New("unknown ratio")

// Ratio names as stored under a snapshot's "computed" section.
const (
	RatioROE          = "ROE"
	RatioEPS          = "EPS"
	RatioPE           = "P/E"
	RatioPFCF         = "P/FCF"
	RatioPCF          = "P/CF"
	RatioPB           = "P/B"
	RatioDebtToEquity = "D/E"
	RatioPretaxMargin = "PretaxMargin"
	RatioCurrent      = "CurrentRatio"
)

// Definition describes one ratio: its input fallback chains and whether it
// needs a price.
type Definition struct {
	Name       string
	Inputs     [][]string
	NeedsPrice bool
	Fn         func(Base, Prices) *float64
}

// Concepts flattens the definition's input chains.
func (d Definition) Concepts() []string {
	var out []string
	for _, chain := range d.Inputs {
		out = append(out, chain...)
	}
	return out
}

func withoutPrice(fn func(Base) *float64) func(Base, Prices) *float64 {
	return func(b Base, _ Prices) *float64 { return fn(b) }
}

var epsInputs = [][]string{EPSChain, {NetIncomeLoss}, SharesChain}

var definitions = map[string]Definition{
	RatioROE: {
		Name:   RatioROE,
		Inputs: [][]string{{NetIncomeLoss}, {StockholdersEquity}},
		Fn:     withoutPrice(ROE),
	},
	RatioEPS: {
		Name:   RatioEPS,
		Inputs: epsInputs,
		Fn:     withoutPrice(EPS),
	},
	RatioPE: {
		Name:       RatioPE,
		Inputs:     epsInputs,
		NeedsPrice: true,
		Fn:         PE,
	},
	RatioPFCF: {
		Name:       RatioPFCF,
		Inputs:     [][]string{CFOChain, {CapEx}, SharesChain},
		NeedsPrice: true,
		Fn:         PFCF,
	},
	RatioPCF: {
		Name:       RatioPCF,
		Inputs:     [][]string{CFOChain, SharesChain},
		NeedsPrice: true,
		Fn:         PCF,
	},
	RatioPB: {
		Name:       RatioPB,
		Inputs:     [][]string{{StockholdersEquity}, SharesChain},
		NeedsPrice: true,
		Fn:         PB,
	},
	RatioDebtToEquity: {
		Name:   RatioDebtToEquity,
		Inputs: [][]string{{TotalDebt}, DebtParts, {StockholdersEquity}},
		Fn:     withoutPrice(DebtToEquity),
	},
	RatioPretaxMargin: {
		Name:   RatioPretaxMargin,
		Inputs: [][]string{{PretaxIncome}, RevenueChain},
		Fn:     withoutPrice(PretaxMargin),
	},
	RatioCurrent: {
		Name:   RatioCurrent,
		Inputs: [][]string{{AssetsCurrent}, {LiabilitiesCurrent}},
		Fn:     withoutPrice(CurrentRatio),
	},
}

// DefaultRatios is the ratio set computed when none is configured.
var DefaultRatios = []string{
	RatioROE, RatioEPS, RatioPE, RatioPFCF, RatioPCF, RatioDebtToEquity, RatioPretaxMargin,
}

// Names lists every defined ratio, sorted.
func Names() []string {
	out := make([]string, 0, len(definitions))
	for name := range definitions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the definition for name.
func Lookup(name string) (Definition, error) {
	d, ok := definitions[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownRatio, name)
	}
	return d, nil
}

// RequiredConcepts is the deduplicated union of every input chain of the
// named ratios, in first-seen order.
func RequiredConcepts(names []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		d, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		for _, concept := range d.Concepts() {
			if !seen[concept] {
				seen[concept] = true
				out = append(out, concept)
			}
		}
	}
	return out, nil
}

// Compute evaluates the named ratios. Every name is validated before any
// ratio runs; missing inputs give nil entries, never errors.
func Compute(names []string, b Base, p Prices) (map[string]*float64, error) {
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		d, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	out := make(map[string]*float64, len(defs))
	for _, d := range defs {
		out[d.Name] = d.Fn(b, p)
	}
	return out, nil
}

// PriceDependent returns the subset of names whose ratios read a price.
func PriceDependent(names []string) []string {
	var out []string
	for _, name := range names {
		if d, ok := definitions[name]; ok && d.NeedsPrice {
			out = append(out, name)
		}
	}
	return out
}
