package models

import "time"

// CardAccount is one option of the portal's card selector. Name is the
// display text and is only a grouping key; Value identifies the option.
type CardAccount struct {
	Name                string
	Value               string
	IsCurrentlySelected bool
	IsAvailable         bool
}

// StatementExport is a captured CSV file in storage. It is never modified
// or deleted after capture.
type StatementExport struct {
	Path       string
	CapturedAt time.Time
}

// PaymentRecord is one row of a statement export.
type PaymentRecord struct {
	UsedOn        string // 利用日
	Merchant      string // 利用店名・商品名
	User          string // 利用者
	PaymentMethod string // 支払方法
	Amount        string // 利用金額
	Fee           string // 支払手数料
	Total         string // 支払総額
	PaymentMonth  string // 支払月

	// Fields holds every column of the row, including the month-keyed ones.
	Fields map[string]string
}

// Column names of the fixed export fields.
const (
	ColumnUsedOn        = "利用日"
	ColumnMerchant      = "利用店名・商品名"
	ColumnUser          = "利用者"
	ColumnPaymentMethod = "支払方法"
	ColumnAmount        = "利用金額"
	ColumnFee           = "支払手数料"
	ColumnTotal         = "支払総額"
	ColumnPaymentMonth  = "支払月"
)

// NewPaymentRecord maps a header-keyed row onto a record.
func NewPaymentRecord(fields map[string]string) PaymentRecord {
	return PaymentRecord{
		UsedOn:        fields[ColumnUsedOn],
		Merchant:      fields[ColumnMerchant],
		User:          fields[ColumnUser],
		PaymentMethod: fields[ColumnPaymentMethod],
		Amount:        fields[ColumnAmount],
		Fee:           fields[ColumnFee],
		Total:         fields[ColumnTotal],
		PaymentMonth:  fields[ColumnPaymentMonth],
		Fields:        fields,
	}
}

// Field returns the value of an arbitrary column and whether it was present
// and non-empty.
func (r PaymentRecord) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// CardStatement is the total of one card for one statement period.
type CardStatement struct {
	CardName string
	Period   string
	Total    *PaymentTotal
}

// Period is a statement tab of the portal.
type Period struct {
	Name string `mapstructure:"name" yaml:"name"`
	Tab  int    `mapstructure:"tab" yaml:"tab"`
}

// Default periods: the current month's statement, then next month's.
var (
	CurrentMonth = Period{Name: "current", Tab: 1}
	NextMonth    = Period{Name: "next", Tab: 0}
)
