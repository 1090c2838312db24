package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a billing month label as printed by the card portal ("1月" … "12月").
type Month int

// Column families derived from a month label in the statement export.
const (
	dueSuffix       = "支払金額"
	carryOverSuffix = "繰越残高"
	remainingSuffix = "以降支払金額"
	monthSuffix     = "月"
)

// PeriodKey identifies a billing month's due-amount total, e.g. "1月支払金額".
type PeriodKey string

// ParseMonth validates a label against the twelve month labels.
func ParseMonth(label string) (Month, error) {
	label = strings.TrimSpace(label)
	digits, ok := strings.CutSuffix(label, monthSuffix)
	if !ok {
		return 0, fmt.Errorf("invalid month label %q", label)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > 12 {
		return 0, fmt.Errorf("invalid month label %q", label)
	}
	return Month(n), nil
}

// MonthOf returns the label for the calendar month of t.
func MonthOf(t time.Time) Month {
	return Month(t.Month())
}

func (m Month) Valid() bool {
	return m >= 1 && m <= 12
}

// Label returns the label as it appears in the export, e.g. "3月".
func (m Month) Label() string {
	return strconv.Itoa(int(m)) + monthSuffix
}

func (m Month) String() string {
	return m.Label()
}

// DueKey is the column holding the amount due in month m, which is also the
// key totals are accumulated under.
func (m Month) DueKey() PeriodKey {
	return PeriodKey(m.Label() + dueSuffix)
}

// CarryOverKey is the column holding the balance carried over into month m.
func (m Month) CarryOverKey() PeriodKey {
	return PeriodKey(m.Label() + carryOverSuffix)
}

// RemainingKey is the column holding what is still due after month m.
func (m Month) RemainingKey() PeriodKey {
	return PeriodKey(m.Label() + remainingSuffix)
}

// Column selects one month-keyed column family.
type Column int

const (
	DueColumn Column = iota
	CarryOverColumn
	RemainingColumn
)

// ParseColumn accepts "due", "carryover" or "remaining"; empty means due.
func ParseColumn(name string) (Column, error) {
	switch strings.ToLower(name) {
	case "", "due":
		return DueColumn, nil
	case "carryover", "carry-over":
		return CarryOverColumn, nil
	case "remaining":
		return RemainingColumn, nil
	}
	return 0, fmt.Errorf("unknown column family %q", name)
}

// Key returns the column of family c for month m.
func (m Month) Key(c Column) PeriodKey {
	switch c {
	case CarryOverColumn:
		return m.CarryOverKey()
	case RemainingColumn:
		return m.RemainingKey()
	}
	return m.DueKey()
}
