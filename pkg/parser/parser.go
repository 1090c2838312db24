package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/yurifrl/meisai/pkg/csv"
	"github.com/yurifrl/meisai/pkg/models"
)

// ParseError reports text that cannot be read as header-delimited rows.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse statement: %v", e.Err)
	}
	return fmt.Sprintf("parse statement %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Options configures a Parser. The zero value decodes UTF-8 and resolves
// missing payment months against the wall clock in UTC.
type Options struct {
	Location *time.Location
	Now      func() time.Time
	Encoding encoding.Encoding
	// Column is the month-keyed column family summed; the zero value is
	// the amount due.
	Column models.Column
}

// Parser turns statement exports into per-month payment totals.
type Parser struct {
	logger   *log.Logger
	location *time.Location
	now      func() time.Time
	encoding encoding.Encoding
	column   models.Column
}

func New(logger *log.Logger, opts Options) *Parser {
	p := &Parser{
		logger:   logger,
		location: opts.Location,
		now:      opts.Now,
		encoding: opts.Encoding,
		column:   opts.Column,
	}
	if p.location == nil {
		p.location = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.encoding == nil {
		p.encoding = unicode.UTF8
	}
	return p
}

// LookupEncoding maps a configured encoding name to its decoder.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "", "utf_8", "utf8":
		return unicode.UTF8, nil
	case "shift_jis", "sjis", "cp932":
		return japanese.ShiftJIS, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// Records decodes data, dropping a leading byte-order mark, and returns its rows.
func (p *Parser) Records(data []byte) ([]models.PaymentRecord, error) {
	decoder := unicode.BOMOverride(p.encoding.NewDecoder())
	table, err := csv.ReadTable(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	records := make([]models.PaymentRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		records = append(records, models.NewPaymentRecord(row))
	}
	return records, nil
}

// Summarize sums the amount due of every row under the period key derived
// from that row's own payment month.
func (p *Parser) Summarize(data []byte) (*models.PaymentTotal, error) {
	records, err := p.Records(data)
	if err != nil {
		return nil, err
	}
	return p.Aggregate(records), nil
}

// Aggregate folds records into a total. Rows whose amount is missing or not
// numeric contribute zero.
func (p *Parser) Aggregate(records []models.PaymentRecord) *models.PaymentTotal {
	total := models.NewPaymentTotal()
	for i, rec := range records {
		month, ok := p.paymentMonth(rec)
		if !ok {
			p.logger.Debug("unknown payment month, skipping row", "line", i+2, "month", rec.PaymentMonth)
			continue
		}
		key := month.Key(p.column)
		raw, _ := rec.Field(string(key))
		amount, err := parseAmount(raw)
		if err != nil {
			p.logger.Debug("invalid amount, counting as zero", "line", i+2, "key", key, "value", raw)
		}
		total.Add(key, amount)
	}
	return total
}

func (p *Parser) paymentMonth(rec models.PaymentRecord) (models.Month, bool) {
	if rec.PaymentMonth == "" {
		return models.MonthOf(p.now().In(p.location)), true
	}
	m, err := models.ParseMonth(rec.PaymentMonth)
	if err != nil {
		return 0, false
	}
	return m, true
}

var amountReplacer = strings.NewReplacer(",", "", "¥", "", "￥", "", "円", "", " ", "")

func parseAmount(raw string) (decimal.Decimal, error) {
	s := amountReplacer.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// SummarizeFile reads and summarizes one export.
func (p *Parser) SummarizeFile(path string) (*models.PaymentTotal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	total, err := p.Summarize(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Source = filepath.Base(path)
		}
		return nil, err
	}
	return total, nil
}

// FileTotal is the total of one export found by SummarizeDir.
type FileTotal struct {
	Path  string
	Total *models.PaymentTotal
}

// SummarizeDir summarizes every .csv file in dir, in name order. Files that
// fail to parse are logged and skipped.
func (p *Parser) SummarizeDir(dir string) ([]FileTotal, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var out []FileTotal
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		total, err := p.SummarizeFile(path)
		if err != nil {
			p.logger.Warn("failed to summarize file", "file", path, "error", err)
			continue
		}
		out = append(out, FileTotal{Path: path, Total: total})
	}
	return out, nil
}
