package rodwrapper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"optexity/internal/domain/entity"

	"github.com/go-rod/rod"
)

// domHelpers is shared by the enumeration and resolution scripts. It defines
// norm, roleOf, nameOf, frameDoc and allDocs in the enclosing function scope.
// Only same-origin frames are reachable.
const domHelpers = `
const frameDoc = f => { try { return f.contentDocument; } catch (e) { return null; } };
const allDocs = doc => [doc].concat(...Array.from(doc.querySelectorAll('iframe, frame')).map(frameDoc).filter(Boolean).map(allDocs));
const norm = s => (s || '').replace(/\s+/g, ' ').trim();
const inputRoles = {checkbox: 'checkbox', radio: 'radio', button: 'button', submit: 'button', reset: 'button',
	image: 'button', range: 'slider', search: 'searchbox', email: 'textbox', tel: 'textbox', url: 'textbox',
	text: 'textbox', password: 'textbox', number: 'spinbutton', file: 'button'};
const tagRoles = {button: 'button', textarea: 'textbox', h1: 'heading', h2: 'heading', h3: 'heading',
	h4: 'heading', h5: 'heading', h6: 'heading', img: 'img', option: 'option', li: 'listitem', ul: 'list',
	ol: 'list', table: 'table', tr: 'row', td: 'cell', th: 'columnheader', nav: 'navigation', form: 'form',
	dialog: 'dialog', summary: 'button', main: 'main', header: 'banner', footer: 'contentinfo', p: 'paragraph'};
const roleOf = el => {
	const explicit = el.getAttribute && el.getAttribute('role');
	if (explicit) return explicit.split(' ')[0];
	const tag = (el.tagName || '').toLowerCase();
	if (tag === 'a') return el.hasAttribute('href') ? 'link' : '';
	if (tag === 'input') return inputRoles[(el.getAttribute('type') || 'text').toLowerCase()] || 'textbox';
	if (tag === 'select') return el.multiple || el.size > 1 ? 'listbox' : 'combobox';
	return tagRoles[tag] || '';
};
const nameOf = el => {
	const aria = el.getAttribute('aria-label');
	if (aria) return norm(aria);
	const by = el.getAttribute('aria-labelledby');
	if (by) {
		const text = by.split(' ').map(id => el.ownerDocument.getElementById(id)).filter(Boolean).map(n => n.innerText).join(' ');
		if (norm(text)) return norm(text);
	}
	if (el.labels && el.labels.length) return norm(Array.from(el.labels).map(l => l.innerText).join(' '));
	for (const attr of ['alt', 'title', 'placeholder']) {
		const v = el.getAttribute(attr);
		if (v) return norm(v);
	}
	const tag = el.tagName.toLowerCase();
	if (tag === 'input' && ['button', 'submit', 'reset'].includes((el.type || '').toLowerCase())) return norm(el.value);
	if (['input', 'select', 'textarea'].includes(tag)) return '';
	return norm(el.innerText || el.textContent);
};
`

const extractJS = `(opts) => {` + domHelpers + `
	const selector = 'a[href], button, input, select, textarea, summary, [role], [contenteditable="true"], [onclick], [tabindex]:not([tabindex="-1"])';
	const visible = el => {
		const r = el.getBoundingClientRect();
		const s = el.ownerDocument.defaultView.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	const inViewport = el => {
		const r = el.getBoundingClientRect();
		return r.top < window.innerHeight && r.bottom >= 0 && r.left < window.innerWidth && r.right >= 0;
	};
	const clip = s => s.length > 200 ? s.slice(0, 200) : s;
	const out = [];
	const registry = [];
	const candidates = allDocs(document).flatMap(d => Array.from(d.querySelectorAll(selector)));
	for (const el of candidates) {
		if (opts.max > 0 && out.length >= opts.max) break;
		if (!opts.hidden && !visible(el)) continue;
		if (opts.viewport && !inViewport(el)) continue;
		const tag = el.tagName.toLowerCase();
		const type = (el.getAttribute('type') || '').toLowerCase();
		const item = {index: out.length, tag: tag, role: roleOf(el), type: type, name: clip(nameOf(el))};
		const text = clip(norm(el.innerText));
		if (text && text !== item.name) item.text = text;
		if ('value' in el && type !== 'password' && tag !== 'button' && el.value) item.value = clip(String(el.value));
		if (tag === 'select') {
			item.options = Array.from(el.options).map(o => ({value: o.value, label: norm(o.label || o.textContent)}));
		}
		out.push(item);
		registry.push(el);
	}
	window.__optexityElements = registry;
	return out;
}`

const elementAtJS = `(i) => (window.__optexityElements || [])[i] || null`

// ExtractUI enumerates interactive elements and remembers them in the page so
// ElementAt can return them by index until the next call.
func ExtractUI(page *rod.Page, opts entity.SnapshotOptions) ([]entity.UIElement, error) {
	res, err := page.Eval(extractJS, map[string]any{
		"max":      opts.MaxElements,
		"viewport": opts.OnlyViewport,
		"hidden":   opts.IncludeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate elements: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var elements []entity.UIElement
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	return elements, nil
}

// ElementAt returns the element numbered index by the last ExtractUI.
func ElementAt(page *rod.Page, index int) (*rod.Element, error) {
	el, err := page.Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(elementAtJS, index))
	if err != nil {
		return nil, fmt.Errorf("element %d: %w", index, err)
	}
	return el, nil
}

// FormatAxtree renders elements one per line, e.g.
//
//	[3] combobox "Country" value=US options=[US|United States, CA|Canada]
func FormatAxtree(elements []entity.UIElement) string {
	var sb strings.Builder
	for _, el := range elements {
		sb.WriteByte('[')
		sb.WriteString(strconv.Itoa(el.Index))
		sb.WriteString("] ")
		role := el.Role
		if role == "" {
			role = el.Tag
		}
		sb.WriteString(role)
		if el.Name != "" {
			sb.WriteString(" " + strconv.Quote(el.Name))
		}
		if el.Text != "" {
			sb.WriteString(" text=" + strconv.Quote(el.Text))
		}
		if el.Type != "" && el.Type != role {
			sb.WriteString(" type=" + el.Type)
		}
		if el.Value != "" {
			sb.WriteString(" value=" + strconv.Quote(el.Value))
		}
		if len(el.Options) > 0 {
			opts := make([]string, len(el.Options))
			for i, o := range el.Options {
				opts[i] = o.Value + "|" + o.Label
			}
			sb.WriteString(" options=[" + strings.Join(opts, ", ") + "]")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
