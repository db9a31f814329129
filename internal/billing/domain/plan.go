package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultAmountRanges is the fallback classification used when no ranges are configured.
const DefaultAmountRanges = "USD:4-10:monthly,USD:40-60:yearly"

// PriceTable maps configured price identifiers to plans.
type PriceTable struct {
	prices map[string]Plan
}

// NewPriceTable builds a table from the monthly and yearly price id lists.
func NewPriceTable(monthly, yearly []string) PriceTable {
	t := PriceTable{prices: make(map[string]Plan, len(monthly)+len(yearly))}
	for _, id := range monthly {
		t.prices[id] = PlanMonthly
	}
	for _, id := range yearly {
		t.prices[id] = PlanYearly
	}
	return t
}

// Lookup returns the plan of a configured price id.
func (t PriceTable) Lookup(priceID string) (Plan, bool) {
	if priceID == "" {
		return "", false
	}
	p, ok := t.prices[priceID]
	return p, ok
}

// Len returns the number of configured price ids.
func (t PriceTable) Len() int {
	return len(t.prices)
}

// AmountRange classifies amounts in [Min, Max] of one currency as Plan.
type AmountRange struct {
	Currency string
	Min      float64
	Max      float64
	Plan     Plan
}

// AmountTable is the currency-aware amount fallback.
type AmountTable struct {
	defaultCurrency string
	ranges          map[string][]AmountRange
}

// ParseAmountTable parses "CUR:min-max:plan" entries separated by commas.
// Amounts without a currency are classified with defaultCurrency.
func ParseAmountTable(raw, defaultCurrency string) (AmountTable, error) {
	t := AmountTable{
		defaultCurrency: strings.ToUpper(strings.TrimSpace(defaultCurrency)),
		ranges:          make(map[string][]AmountRange),
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		r, err := parseAmountRange(entry)
		if err != nil {
			return AmountTable{}, err
		}
		t.ranges[r.Currency] = append(t.ranges[r.Currency], r)
	}
	for cur := range t.ranges {
		rs := t.ranges[cur]
		sort.Slice(rs, func(i, j int) bool { return rs[i].Min < rs[j].Min })
	}
	return t, nil
}

// DefaultAmountTable returns the built-in table.
func DefaultAmountTable(defaultCurrency string) AmountTable {
	t, _ := ParseAmountTable(DefaultAmountRanges, defaultCurrency)
	return t
}

func parseAmountRange(entry string) (AmountRange, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return AmountRange{}, fmt.Errorf("amount range %q: want CUR:min-max:plan", entry)
	}
	currency := strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(currency) != 3 {
		return AmountRange{}, fmt.Errorf("amount range %q: invalid currency %q", entry, parts[0])
	}
	bounds := strings.SplitN(parts[1], "-", 2)
	if len(bounds) != 2 {
		return AmountRange{}, fmt.Errorf("amount range %q: want min-max", entry)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(bounds[0]), 64)
	if err != nil {
		return AmountRange{}, fmt.Errorf("amount range %q: min: %w", entry, err)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(bounds[1]), 64)
	if err != nil {
		return AmountRange{}, fmt.Errorf("amount range %q: max: %w", entry, err)
	}
	if lo > hi {
		return AmountRange{}, fmt.Errorf("amount range %q: min greater than max", entry)
	}
	plan, ok := ParsePlan(strings.ToLower(strings.TrimSpace(parts[2])))
	if !ok || plan == PlanUnknown {
		return AmountRange{}, fmt.Errorf("amount range %q: plan must be monthly or yearly", entry)
	}
	return AmountRange{Currency: currency, Min: lo, Max: hi, Plan: plan}, nil
}

// Classify returns the plan for m and whether its currency has ranges at all.
func (t AmountTable) Classify(m Money) (Plan, bool) {
	currency := strings.ToUpper(m.Currency)
	if currency == "" {
		currency = t.defaultCurrency
	}
	ranges, ok := t.ranges[currency]
	if !ok {
		return PlanUnknown, false
	}
	v, ok := m.Value()
	if !ok {
		return PlanUnknown, true
	}
	for _, r := range ranges {
		if v >= r.Min && v <= r.Max {
			return r.Plan, true
		}
	}
	return PlanUnknown, true
}

// Currencies lists the currencies that have ranges.
func (t AmountTable) Currencies() []string {
	out := make([]string, 0, len(t.ranges))
	for c := range t.ranges {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Resolution is the outcome of plan resolution.
type Resolution struct {
	Plan                Plan
	Source              PlanSource
	UnsupportedCurrency string
}

// PlanResolver derives a plan from a price id, falling back to an amount.
type PlanResolver struct {
	Prices  PriceTable
	Amounts AmountTable
}

// Resolve classifies a price id and an optional amount.
func (r PlanResolver) Resolve(priceID string, m *Money) Resolution {
	if plan, ok := r.Prices.Lookup(priceID); ok {
		return Resolution{Plan: plan, Source: PlanSourcePriceID}
	}
	if m == nil {
		return Resolution{Plan: PlanUnknown, Source: PlanSourceNone}
	}
	if _, ok := m.Value(); !ok {
		return Resolution{Plan: PlanUnknown, Source: PlanSourceNone}
	}
	plan, supported := r.Amounts.Classify(*m)
	if !supported {
		currency := m.Currency
		if currency == "" {
			currency = r.Amounts.defaultCurrency
		}
		return Resolution{Plan: PlanUnknown, Source: PlanSourceNone, UnsupportedCurrency: currency}
	}
	if plan == PlanUnknown {
		return Resolution{Plan: PlanUnknown, Source: PlanSourceNone}
	}
	return Resolution{Plan: plan, Source: PlanSourceAmount}
}

// Reconcile merges a resolution into the stored plan.
//
// A price-derived plan always wins. An amount-derived plan only fills a plan
// that is still unknown; when it disagrees with a known plan the stored value
// is kept and a reconciliation warning is returned.
func Reconcile(plan Plan, source PlanSource, res Resolution) (Plan, PlanSource, []Note) {
	var notes []Note
	if res.UnsupportedCurrency != "" {
		notes = append(notes, warn(NoteUnsupportedCurrency,
			fmt.Sprintf("no amount ranges configured for currency %s", res.UnsupportedCurrency)))
	}

	switch res.Source {
	case PlanSourcePriceID:
		if plan != PlanUnknown && plan != res.Plan {
			notes = append(notes, info(NotePlanCorrected,
				fmt.Sprintf("plan corrected from %s to %s by price id", plan, res.Plan)))
		}
		return res.Plan, PlanSourcePriceID, notes
	case PlanSourceAmount:
		if plan == PlanUnknown || plan == "" {
			notes = append(notes, info(NotePlanInferred,
				fmt.Sprintf("plan %s inferred from amount", res.Plan)))
			return res.Plan, PlanSourceAmount, notes
		}
		if plan != res.Plan {
			notes = append(notes, warn(NoteReconciliationWarning,
				fmt.Sprintf("amount suggests %s but stored plan is %s (source %s)", res.Plan, plan, source)))
		}
	}
	return plan, source, notes
}
