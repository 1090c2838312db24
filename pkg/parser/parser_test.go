package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/japanese"

	"github.com/yurifrl/meisai/pkg/models"
)

const header = "利用日,利用店名・商品名,利用者,支払方法,利用金額,支払手数料,支払総額,支払月,1月支払金額,2月支払金額,2月繰越残高\n"

func newTestParser() *Parser {
	tokyo := time.FixedZone("JST", 9*60*60)
	return New(log.Default(), Options{
		Location: tokyo,
		// 2025-03-31 20:00 UTC is already April in Tokyo.
		Now: func() time.Time { return time.Date(2025, 3, 31, 20, 0, 0, 0, time.UTC) },
	})
}

func assertTotal(t *testing.T, got *models.PaymentTotal, want map[string]string) {
	t.Helper()
	if got.Len() != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), got.Len(), got.Map())
	}
	for k, v := range want {
		amount, ok := got.Get(models.PeriodKey(k))
		if !ok {
			t.Errorf("missing key %q in %v", k, got.Map())
			continue
		}
		if !amount.Equal(decimal.RequireFromString(v)) {
			t.Errorf("key %q: expected %s, got %s", k, v, amount)
		}
	}
}

func TestSummarizeSameMonthAccumulates(t *testing.T) {
	data := header +
		",,,,,,,1月,1000,,\n" +
		",,,,,,,1月,2000,,\n"

	total, err := newTestParser().Summarize([]byte(data))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	assertTotal(t, total, map[string]string{"1月支払金額": "3000"})
}

func TestSummarizeRowsKeepTheirOwnMonth(t *testing.T) {
	data := header +
		"2024/12/01,SHOP A,本人,1回払い,1000,0,1000,1月,1000,,\n" +
		"2024/12/15,SHOP B,本人,分割,1500,0,1500,2月,,500,1000\n"

	total, err := newTestParser().Summarize([]byte(data))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	assertTotal(t, total, map[string]string{"1月支払金額": "1000", "2月支払金額": "500"})

	keys := total.Keys()
	if keys[0] != "1月支払金額" || keys[1] != "2月支払金額" {
		t.Errorf("expected keys in row order, got %v", keys)
	}
}

func TestSummarizeNonNumericContributesZero(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"non-numeric", ",,,,,,,1月,abc,,\n"},
		{"empty", ",,,,,,,1月,,,\n"},
		{"short row", ",,,,,,,1月\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := header + ",,,,,,,1月,700,,\n" + tt.row
			total, err := newTestParser().Summarize([]byte(data))
			if err != nil {
				t.Fatalf("Summarize failed: %v", err)
			}
			assertTotal(t, total, map[string]string{"1月支払金額": "700"})
		})
	}
}

func TestSummarizeAmountFormatting(t *testing.T) {
	data := header +
		",,,,,,,1月,\"1,200\",,\n" +
		",,,,,,,1月,300円,,\n" +
		",,,,,,,1月,-100,,\n"

	total, err := newTestParser().Summarize([]byte(data))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	assertTotal(t, total, map[string]string{"1月支払金額": "1400"})
}

func TestSummarizeMissingMonthUsesConfiguredClock(t *testing.T) {
	data := "利用日,支払月,4月支払金額,3月支払金額\n" +
		"2025/03/01,,800,900\n"

	total, err := newTestParser().Summarize([]byte(data))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	assertTotal(t, total, map[string]string{"4月支払金額": "800"})
}

func TestSummarizeUnknownMonthLabelIsSkipped(t *testing.T) {
	data := header +
		",,,,,,,13月,1000,,\n" +
		",,,,,,,1月,50,,\n"

	total, err := newTestParser().Summarize([]byte(data))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	assertTotal(t, total, map[string]string{"1月支払金額": "50"})
}

func TestSummarizeByteOrderMark(t *testing.T) {
	data := header +
		",,,,,,,1月,1000,,\n" +
		",,,,,,,2月,,500,\n"

	p := newTestParser()
	plain, err := p.Summarize([]byte(data))
	if err != nil {
		t.Fatalf("Summarize without BOM failed: %v", err)
	}
	withBOM, err := p.Summarize([]byte("\ufeff" + data))
	if err != nil {
		t.Fatalf("Summarize with BOM failed: %v", err)
	}

	if plain.Len() != withBOM.Len() {
		t.Fatalf("expected same keys, got %v and %v", plain.Map(), withBOM.Map())
	}
	for _, k := range plain.Keys() {
		a, _ := plain.Get(k)
		b, ok := withBOM.Get(k)
		if !ok || !a.Equal(b) {
			t.Errorf("key %q: %s without BOM, %s with BOM", k, a, b)
		}
	}
}

func TestSummarizeShiftJIS(t *testing.T) {
	data := header + ",,,,,,,1月,1000,,\n"
	encoded, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(data))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	p := New(log.Default(), Options{Encoding: japanese.ShiftJIS})
	total, err := p.Summarize(encoded)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	assertTotal(t, total, map[string]string{"1月支払金額": "1000"})
}

func TestSummarizeParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"blank header", ",,\n1,2,3\n"},
		{"duplicate header", "支払月,支払月\n1月,2月\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestParser().Summarize([]byte(tt.data))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestSummarizeHeaderOnly(t *testing.T) {
	total, err := newTestParser().Summarize([]byte(header))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if total.Len() != 0 {
		t.Errorf("expected empty total, got %v", total.Map())
	}
}

func TestSummarizeDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"1700000000rakuten-card.csv": header + ",,,,,,,1月,1000,,\n",
		"1700000001rakuten-card.csv": "",
		"notes.txt":                  "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	results, err := newTestParser().SummarizeDir(dir)
	if err != nil {
		t.Fatalf("SummarizeDir failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if filepath.Base(results[0].Path) != "1700000000rakuten-card.csv" {
		t.Errorf("unexpected file %s", results[0].Path)
	}
	assertTotal(t, results[0].Total, map[string]string{"1月支払金額": "1000"})
}

func TestSummarizeFileParseErrorNamesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := newTestParser().SummarizeFile(path)
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Source != "broken.csv" {
		t.Fatalf("expected ParseError for broken.csv, got %v", err)
	}
}

func TestLookupEncoding(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8", "shift_jis", "Shift-JIS", "cp932"} {
		if _, err := LookupEncoding(name); err != nil {
			t.Errorf("LookupEncoding(%q): %v", name, err)
		}
	}
	if _, err := LookupEncoding("latin1"); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}

func TestSummarizeCarryOverColumn(t *testing.T) {
	data := header +
		",,,,,,,2月,,500,1000\n" +
		",,,,,,,2月,,200,x\n"

	p := New(log.Default(), Options{Column: models.CarryOverColumn})
	total, err := p.Summarize([]byte(data))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	assertTotal(t, total, map[string]string{"2月繰越残高": "1000"})
}
