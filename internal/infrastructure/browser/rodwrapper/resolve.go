package rodwrapper

import (
	"fmt"

	"optexity/internal/infrastructure/browser/locator"

	"github.com/go-rod/rod"
)

const resolveJS = `(plan) => {` + domHelpers + `
	const matches = (text, want, exact) => {
		const t = norm(text);
		return exact ? t === want : t.toLowerCase().includes(norm(want).toLowerCase());
	};
	const all = roots => roots.flatMap(r => Array.from(r.querySelectorAll('*')));
	const byAttr = (roots, attr, step) => all(roots).filter(el => {
		const v = el.getAttribute(attr);
		return v != null && matches(v, step.value, !!step.exact);
	});
	let scope = [document];
	for (const step of plan.steps) {
		switch (step.kind) {
		case 'css':
			scope = scope.flatMap(r => Array.from(r.querySelectorAll(step.value)));
			break;
		case 'xpath': {
			const next = [];
			for (const r of scope) {
				const it = (r.ownerDocument || r).evaluate(step.value, r, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
				for (let i = 0; i < it.snapshotLength; i++) next.push(it.snapshotItem(i));
			}
			scope = next;
			break;
		}
		case 'role':
			scope = all(scope).filter(el => roleOf(el) === step.value && (!step.name || matches(nameOf(el), step.name, !!step.exact)));
			break;
		case 'text': {
			const hits = all(scope).filter(el => !['SCRIPT', 'STYLE'].includes(el.tagName) && matches(el.innerText || el.textContent, step.value, !!step.exact));
			scope = hits.filter(el => !hits.some(o => o !== el && el.contains(o)));
			break;
		}
		case 'label':
			scope = all(scope).filter(el => {
				if (el.labels && Array.from(el.labels).some(l => matches(l.innerText, step.value, !!step.exact))) return true;
				const aria = el.getAttribute('aria-label');
				return aria != null && matches(aria, step.value, !!step.exact);
			});
			break;
		case 'placeholder':
			scope = byAttr(scope, 'placeholder', step);
			break;
		case 'alt':
			scope = byAttr(scope, 'alt', step);
			break;
		case 'title':
			scope = byAttr(scope, 'title', step);
			break;
		case 'test_id':
			scope = all(scope).filter(el => el.getAttribute('data-testid') === step.value || el.getAttribute('data-test-id') === step.value);
			break;
		case 'nth': {
			const n = step.index || 0;
			const i = n < 0 ? scope.length + n : n;
			scope = scope[i] ? [scope[i]] : [];
			break;
		}
		case 'filter':
			break;
		case 'frame':
			scope = scope.filter(el => ['IFRAME', 'FRAME'].includes(el.tagName)).map(frameDoc).filter(Boolean);
			break;
		}
		if (step.has_text) scope = scope.filter(el => matches(el.innerText || el.textContent, step.has_text, false));
	}
	return scope.find(el => el && el.nodeType === Node.ELEMENT_NODE) || null;
}`

// Resolve evaluates plan in page and returns the first match. It polls until
// the page context is done.
func Resolve(page *rod.Page, plan locator.Plan) (*rod.Element, error) {
	el, err := page.ElementByJS(rod.Eval(resolveJS, plan))
	if err != nil {
		return nil, fmt.Errorf("resolve locator: %w", err)
	}
	return el, nil
}
