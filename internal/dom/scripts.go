package dom

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// Attributes used to tag elements for the duration of one call.
const (
	TextMarkAttr = "data-domscout-text"
	ScanMarkAttr = "data-domscout-scan"
)

// jsArg renders v as a JavaScript literal.
func jsArg(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// interactiveAncestors is what a text hit is widened to, so a label inside a
// button resolves to the button.
const interactiveAncestors = "button, a, label, select, textarea, [role=button], [role=link]"

func findByTextScript(needle string, limit int) string {
	return fmt.Sprintf(`((needle, attr, widen, limit) => {
	document.querySelectorAll('[' + attr + ']').forEach(e => e.removeAttribute(attr));
	const n = needle.replace(/\s+/g, ' ').trim().toLowerCase();
	if (!n || !document.body) return 0;
	const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE']);
	const contains = el => !skip.has(el.tagName) &&
		(el.textContent || '').replace(/\s+/g, ' ').toLowerCase().includes(n);
	const hits = [];
	const walk = el => {
		if (hits.length >= limit) return;
		let deeper = false;
		for (const child of el.children) {
			if (contains(child)) { deeper = true; walk(child); }
		}
		if (!deeper && el !== document.body) {
			const target = el.closest(widen) || el;
			if (!hits.includes(target) && hits.length < limit) hits.push(target);
		}
	};
	if (contains(document.body)) walk(document.body);
	hits.forEach((el, i) => el.setAttribute(attr, String(i)));
	return hits.length;
})(%s, %s, %s, %d)`, jsArg(needle), jsArg(TextMarkAttr), jsArg(interactiveAncestors), limit)
}

func findAllScript(selector string, limit int) string {
	return fmt.Sprintf(`((sel, attr, limit) => {
	document.querySelectorAll('[' + attr + ']').forEach(e => e.removeAttribute(attr));
	const nodes = document.querySelectorAll(sel);
	const n = Math.min(nodes.length, limit);
	for (let i = 0; i < n; i++) nodes[i].setAttribute(attr, String(i));
	return n;
})(%s, %s, %d)`, jsArg(selector), jsArg(ScanMarkAttr), limit)
}

func clearMarksScript() string {
	return fmt.Sprintf(`(attrs => {
	attrs.forEach(a => document.querySelectorAll('[' + a + ']').forEach(e => e.removeAttribute(a)));
	return true;
})(%s)`, jsArg([]string{TextMarkAttr, ScanMarkAttr}))
}

func extractScript(selector string) string {
	return fmt.Sprintf(`(sel => {
	const el = document.querySelector(sel);
	if (!el) return null;
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	const visible = rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden' &&
		parseFloat(style.opacity || '1') > 0;
	return {
		tag: el.tagName.toLowerCase(),
		id: el.id || '',
		name: el.getAttribute('name') || '',
		placeholder: el.getAttribute('placeholder') || el.placeholder || '',
		role: el.getAttribute('role') || '',
		text: el.textContent || '',
		type: el.getAttribute('type') || '',
		visible: visible,
	};
})(%s)`, jsArg(selector))
}

func fillScript(selector, value string) string {
	return fmt.Sprintf(`((sel, value) => {
	const el = document.querySelector(sel);
	if (!el) throw new Error('element is no longer attached');
	const fillable = el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement;
	if (!fillable && !el.isContentEditable) {
		throw new Error('element <' + el.tagName.toLowerCase() + '> is not fillable');
	}
	el.focus();
	if (fillable) {
		const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, value);
	} else {
		el.textContent = value;
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s)`, jsArg(selector), jsArg(value))
}

func selectScript(selector, value string) string {
	return fmt.Sprintf(`((sel, value) => {
	const el = document.querySelector(sel);
	if (!el) throw new Error('element is no longer attached');
	if (!(el instanceof HTMLSelectElement)) {
		throw new Error('element <' + el.tagName.toLowerCase() + '> is not a select');
	}
	const options = Array.from(el.options);
	const opt = options.find(o => o.value === value) ||
		options.find(o => o.label === value || o.text.trim() === value);
	if (!opt) throw new Error('no option matches ' + JSON.stringify(value));
	el.value = opt.value;
	opt.selected = true;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return opt.value;
})(%s, %s)`, jsArg(selector), jsArg(value))
}
