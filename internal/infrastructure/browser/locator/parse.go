// Package locator parses recorded locator commands such as
//
//	get_by_role("button", name="Submit").nth(1)
//	locator("#form").get_by_label("Email", exact=True)
//	locator("#login-iframe").content_frame.get_by_role("textbox", name="User ID")
//
// into a Plan that the browser adapter resolves inside the page.
package locator

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type Kind string

const (
	KindCSS         Kind = "css"
	KindXPath       Kind = "xpath"
	KindRole        Kind = "role"
	KindText        Kind = "text"
	KindLabel       Kind = "label"
	KindPlaceholder Kind = "placeholder"
	KindAltText     Kind = "alt"
	KindTitle       Kind = "title"
	KindTestID      Kind = "test_id"
	KindNth         Kind = "nth"
	KindFilter      Kind = "filter"
	// KindFrame moves the search into the documents of the matched iframes.
	KindFrame Kind = "frame"
)

// Step is one link of a locator chain.
type Step struct {
	Kind    Kind   `json:"kind"`
	Value   string `json:"value,omitempty"`
	Name    string `json:"name,omitempty"`
	Exact   bool   `json:"exact,omitempty"`
	Index   int    `json:"index,omitempty"`
	HasText string `json:"has_text,omitempty"`
}

type Plan struct {
	Steps []Step `json:"steps"`
}

var methods = map[string]Kind{
	"locator":            KindCSS,
	"get_by_role":        KindRole,
	"get_by_text":        KindText,
	"get_by_label":       KindLabel,
	"get_by_placeholder": KindPlaceholder,
	"get_by_alt_text":    KindAltText,
	"get_by_title":       KindTitle,
	"get_by_test_id":     KindTestID,
	"frame_locator":      KindFrame,
}

// Parse turns a command into a Plan. A command that is not a call chain is
// taken as a plain CSS selector, or an XPath when it starts with "/" or "xpath=".
func Parse(command string) (Plan, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Plan{}, fmt.Errorf("empty locator command")
	}
	command = strings.TrimPrefix(command, "page.")

	if !looksLikeCall(command) {
		return Plan{Steps: []Step{selectorStep(command)}}, nil
	}

	p := &parser{src: command}
	var plan Plan
	for {
		steps, err := p.call()
		if err != nil {
			return Plan{}, fmt.Errorf("parse %q: %w", command, err)
		}
		plan.Steps = append(plan.Steps, steps...)

		p.skipSpace()
		if p.eof() {
			return plan, nil
		}
		if !p.consume('.') {
			return Plan{}, fmt.Errorf("parse %q: unexpected %q at %d", command, p.peek(), p.pos)
		}
	}
}

func looksLikeCall(command string) bool {
	i := strings.IndexFunc(command, func(r rune) bool { return r != '_' && !unicode.IsLetter(r) })
	if i <= 0 {
		return false
	}
	_, known := methods[command[:i]]
	return known && command[i] == '('
}

func selectorStep(sel string) Step {
	switch {
	case strings.HasPrefix(sel, "xpath="):
		return Step{Kind: KindXPath, Value: strings.TrimPrefix(sel, "xpath=")}
	case strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "("):
		return Step{Kind: KindXPath, Value: sel}
	case strings.HasPrefix(sel, "css="):
		return Step{Kind: KindCSS, Value: strings.TrimPrefix(sel, "css=")}
	}
	return Step{Kind: KindCSS, Value: sel}
}

type parser struct {
	src string
	pos int
}

type args struct {
	positional []string
	keyword    map[string]string
}

// call reads one link of the chain. frame_locator yields two steps: the
// iframe selector and the switch into its document.
func (p *parser) call() ([]Step, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("expected method name at %d", p.pos)
	}

	switch name {
	case "first":
		return one(Step{Kind: KindNth, Index: 0}, p.optionalEmptyCall())
	case "last":
		return one(Step{Kind: KindNth, Index: -1}, p.optionalEmptyCall())
	case "content_frame":
		return one(Step{Kind: KindFrame}, p.optionalEmptyCall())
	}

	a, err := p.arguments()
	if err != nil {
		return nil, err
	}
	if name == "frame_locator" {
		if len(a.positional) != 1 {
			return nil, fmt.Errorf("frame_locator takes one selector")
		}
		return []Step{selectorStep(a.positional[0]), {Kind: KindFrame}}, nil
	}
	step, err := a.step(name)
	if err != nil {
		return nil, err
	}
	return []Step{step}, nil
}

func one(step Step, err error) ([]Step, error) {
	if err != nil {
		return nil, err
	}
	return []Step{step}, nil
}

func (a args) step(name string) (Step, error) {
	switch name {
	case "nth":
		if len(a.positional) != 1 {
			return Step{}, fmt.Errorf("nth takes one index")
		}
		n, err := strconv.Atoi(a.positional[0])
		if err != nil {
			return Step{}, fmt.Errorf("nth index %q: %w", a.positional[0], err)
		}
		return Step{Kind: KindNth, Index: n}, nil
	case "filter":
		text, ok := a.keyword["has_text"]
		if !ok {
			return Step{}, fmt.Errorf("filter supports has_text only")
		}
		return Step{Kind: KindFilter, HasText: text}, nil
	}

	kind, ok := methods[name]
	if !ok {
		return Step{}, fmt.Errorf("unsupported method %q", name)
	}
	if len(a.positional) != 1 {
		return Step{}, fmt.Errorf("%s takes one positional argument, got %d", name, len(a.positional))
	}

	step := Step{Kind: kind, Value: a.positional[0], Name: a.keyword["name"]}
	if kind == KindCSS {
		step = selectorStep(step.Value)
	}
	if exact, ok := a.keyword["exact"]; ok {
		step.Exact = exact == "True" || exact == "true"
	}
	if text, ok := a.keyword["has_text"]; ok {
		step.HasText = text
	}
	return step, nil
}

func (p *parser) optionalEmptyCall() error {
	p.skipSpace()
	if !p.consume('(') {
		return nil
	}
	p.skipSpace()
	if !p.consume(')') {
		return fmt.Errorf("expected ) at %d", p.pos)
	}
	return nil
}

func (p *parser) arguments() (args, error) {
	a := args{keyword: map[string]string{}}
	p.skipSpace()
	if !p.consume('(') {
		return a, fmt.Errorf("expected ( at %d", p.pos)
	}
	for {
		p.skipSpace()
		if p.consume(')') {
			return a, nil
		}

		start := p.pos
		key := p.ident()
		p.skipSpace()
		if key != "" && p.consume('=') {
			p.skipSpace()
			v, err := p.value()
			if err != nil {
				return a, err
			}
			a.keyword[key] = v
		} else {
			p.pos = start
			v, err := p.value()
			if err != nil {
				return a, err
			}
			a.positional = append(a.positional, v)
		}

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(')') {
			return a, nil
		}
		return a, fmt.Errorf("expected , or ) at %d", p.pos)
	}
}

// value reads a quoted string, a number or a bare word such as True.
func (p *parser) value() (string, error) {
	if p.eof() {
		return "", fmt.Errorf("unexpected end of command")
	}
	switch q := p.peek(); q {
	case '"', '\'':
		return p.quoted(q)
	}
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ',' || c == ')' || c == ' ' {
			break
		}
		p.pos++
	}
	if start == p.pos {
		return "", fmt.Errorf("expected value at %d", p.pos)
	}
	return p.src[start:p.pos], nil
}

func (p *parser) quoted(q byte) (string, error) {
	p.pos++
	var sb strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			next := p.src[p.pos+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(next)
			}
			p.pos += 2
		case c == q:
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c != '_' && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9' && p.pos > start) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\n') {
		p.pos++
	}
}

func (p *parser) consume(c byte) bool {
	if !p.eof() && p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peek() byte { return p.src[p.pos] }
func (p *parser) eof() bool  { return p.pos >= len(p.src) }
