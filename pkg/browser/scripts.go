package browser

import (
	"encoding/json"
	"fmt"
)

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func optionsScript(selector string) string {
	return fmt.Sprintf(`Array.from(document.querySelector(%s).options).map((o) => ({
	text: o.innerText.trim(),
	value: o.value,
	selected: o.selected,
	disabled: o.disabled,
}))`, jsString(selector))
}

func selectScript(selector, label string) string {
	return fmt.Sprintf(`(() => {
	const sel = document.querySelector(%s);
	const label = %s;
	const opts = Array.from(sel.options);
	const opt = opts.find((o) => o.value === label) || opts.find((o) => o.innerText.trim() === label);
	if (!opt) {
		return false;
	}
	sel.value = opt.value;
	sel.dispatchEvent(new Event("input", { bubbles: true }));
	sel.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
})()`, jsString(selector), jsString(label))
}
