package browser

import (
	"strings"
	"testing"
)

func TestSelectScriptQuotesInput(t *testing.T) {
	script := selectScript(".stmt-head-regist-card__select__box", `楽天カード "Visa"`)

	if !strings.Contains(script, `document.querySelector(".stmt-head-regist-card__select__box")`) {
		t.Errorf("selector not quoted:\n%s", script)
	}
	if !strings.Contains(script, `const label = "楽天カード \"Visa\"";`) {
		t.Errorf("label not escaped:\n%s", script)
	}
}

func TestOptionsScriptReadsFlags(t *testing.T) {
	script := optionsScript("select#card")
	for _, want := range []string{`"select#card"`, "selected: o.selected", "disabled: o.disabled"} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

func TestSelectScriptPrefersValue(t *testing.T) {
	script := selectScript("select#card", "card-2")
	byValue := strings.Index(script, "o.value === label")
	byText := strings.Index(script, "o.innerText.trim() === label")
	if byValue < 0 || byText < 0 || byValue > byText {
		t.Errorf("value match must come before text match:\n%s", script)
	}
}
