package models

import (
	"github.com/shopspring/decimal"
)

// PaymentTotal maps period keys to summed amounts. Keys keep the order in
// which they were first added so reports are reproducible.
type PaymentTotal struct {
	keys    []PeriodKey
	amounts map[PeriodKey]decimal.Decimal
}

// NewPaymentTotal returns an empty total.
func NewPaymentTotal() *PaymentTotal {
	return &PaymentTotal{amounts: make(map[PeriodKey]decimal.Decimal)}
}

// Add accumulates amount under key. It is the only aggregation rule: rows of
// one export and statements of one card are both merged through it.
func (t *PaymentTotal) Add(key PeriodKey, amount decimal.Decimal) {
	if t.amounts == nil {
		t.amounts = make(map[PeriodKey]decimal.Decimal)
	}
	cur, ok := t.amounts[key]
	if !ok {
		t.keys = append(t.keys, key)
	}
	t.amounts[key] = cur.Add(amount)
}

// Merge adds every entry of other, in other's key order.
func (t *PaymentTotal) Merge(other *PaymentTotal) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		t.Add(k, other.amounts[k])
	}
}

// Keys returns the period keys in first-seen order.
func (t *PaymentTotal) Keys() []PeriodKey {
	if t == nil {
		return nil
	}
	out := make([]PeriodKey, len(t.keys))
	copy(out, t.keys)
	return out
}

// Get returns the total for key and whether it is present.
func (t *PaymentTotal) Get(key PeriodKey) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	v, ok := t.amounts[key]
	return v, ok
}

func (t *PaymentTotal) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Map returns a copy keyed by the plain key text.
func (t *PaymentTotal) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, t.Len())
	if t == nil {
		return out
	}
	for k, v := range t.amounts {
		out[string(k)] = v
	}
	return out
}
