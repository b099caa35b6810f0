// Package domain provides the data model shared by the pool risk engine:
// pool and scenario descriptions, simulation settings, and the report and
// rating records returned to callers.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// shareEpsilon is the tolerance applied to tranche share and boundary checks
const shareEpsilon = 1e-6

// Tranche is a loss-priority slice of the pool.
// Attachment and Detachment are fractions of pool notional; Share is the
// tranche's fraction of pool notional and must equal Detachment-Attachment.
type Tranche struct {
	Name       string  `json:"name" yaml:"name"`
	Seniority  int     `json:"seniority" yaml:"seniority"` // 1 = most senior
	Share      float64 `json:"share" yaml:"share"`
	Attachment float64 `json:"attachment" yaml:"attachment"`
	Detachment float64 `json:"detachment" yaml:"detachment"`
	CouponRate float64 `json:"coupon_rate,omitempty" yaml:"coupon_rate"` // percent, 0 = pool coupon
}

// Width returns the loss-absorption width of the tranche
func (t Tranche) Width() float64 {
	return t.Detachment - t.Attachment
}

// PoolDescriptor is the immutable description of a securitized pool
type PoolDescriptor struct {
	Name       string          `json:"name,omitempty" yaml:"name"`
	Notional   decimal.Decimal `json:"notional" yaml:"notional"`
	TermMonths int             `json:"term_months" yaml:"term_months"`
	Currency   Currency        `json:"currency" yaml:"currency"`
	CouponRate float64         `json:"coupon_rate" yaml:"coupon_rate"` // contractual annual yield, percent
	Tranches   []Tranche       `json:"tranches,omitempty" yaml:"tranches"`
}

// TermYears returns the weighted-average term in years
func (p PoolDescriptor) TermYears() float64 {
	return float64(p.TermMonths) / 12.0
}

// HasTranches reports whether the pool is tranched
func (p PoolDescriptor) HasTranches() bool {
	return len(p.Tranches) > 0
}

// Validate checks the pool invariants.
// Tranches must tile [0,1] exactly: junior-most attaches at 0, each
// tranche attaches where the next junior one detaches, senior-most detaches at 1.
func (p PoolDescriptor) Validate() error {
	if !p.Notional.IsPositive() {
		return NewConfigurationError("pool.notional", "must be positive, got %s", p.Notional.String())
	}
	if p.TermMonths <= 0 {
		return NewConfigurationError("pool.term_months", "must be positive, got %d", p.TermMonths)
	}
	if len(strings.TrimSpace(string(p.Currency))) != 3 {
		return NewConfigurationError("pool.currency", "must be a 3-letter code, got %q", p.Currency)
	}
	if !isFiniteNonNegative(p.CouponRate) {
		return NewConfigurationError("pool.coupon_rate", "must be a non-negative number, got %v", p.CouponRate)
	}
	if len(p.Tranches) == 0 {
		return nil
	}

	seen := make(map[int]string, len(p.Tranches))
	total := 0.0
	for i, t := range p.Tranches {
		field := fmt.Sprintf("pool.tranches[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			return NewConfigurationError(field+".name", "is required")
		}
		if other, dup := seen[t.Seniority]; dup {
			return NewConfigurationError(field+".seniority", "rank %d already used by %q", t.Seniority, other)
		}
		seen[t.Seniority] = t.Name
		if t.Attachment < 0 || t.Detachment > 1+shareEpsilon || !(t.Attachment < t.Detachment) {
			return NewConfigurationError(field, "attachment %.6f must be below detachment %.6f within [0,1]", t.Attachment, t.Detachment)
		}
		if !isFiniteNonNegative(t.Share) {
			return NewConfigurationError(field+".share", "must be a non-negative number, got %v", t.Share)
		}
		if math.Abs(t.Share-t.Width()) > shareEpsilon {
			return NewConfigurationError(field+".share", "share %.6f does not match loss range width %.6f", t.Share, t.Width())
		}
		if !isFiniteNonNegative(t.CouponRate) {
			return NewConfigurationError(field+".coupon_rate", "must be a non-negative number, got %v", t.CouponRate)
		}
		total += t.Share
	}
	if math.Abs(total-1.0) > shareEpsilon {
		return NewConfigurationError("pool.tranches", "notional shares sum to %.6f, expected 1.0", total)
	}

	ordered := p.TranchesJuniorFirst()
	if ordered[0].Attachment > shareEpsilon {
		return NewConfigurationError("pool.tranches", "most junior tranche %q must attach at 0", ordered[0].Name)
	}
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if cur.Attachment < prev.Detachment-shareEpsilon {
			return NewConfigurationError("pool.tranches", "tranche %q overlaps %q", cur.Name, prev.Name)
		}
		if cur.Attachment > prev.Detachment+shareEpsilon {
			return NewConfigurationError("pool.tranches", "gap between %q and %q", prev.Name, cur.Name)
		}
	}
	return nil
}

// TranchesJuniorFirst returns a copy of the tranches ordered from the most
// subordinate (highest seniority rank) to the most senior.
func (p PoolDescriptor) TranchesJuniorFirst() []Tranche {
	ordered := make([]Tranche, len(p.Tranches))
	copy(ordered, p.Tranches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Seniority > ordered[j].Seniority
	})
	return ordered
}

func isFiniteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
