// Package testutil holds in-memory fakes of the output ports for use-case tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
)

var (
	_ output.BrowserPort   = (*Browser)(nil)
	_ output.ElementHandle = (*Element)(nil)
	_ output.LLMPort       = (*LLM)(nil)
	_ output.TraceStore    = (*Trace)(nil)
	_ output.SecretsPort   = (*Secrets)(nil)
)

var ErrNotFound = errors.New("element not found")

// Element records every action performed on it.
type Element struct {
	mu sync.Mutex

	Err      error
	Opts     []entity.SelectOption
	Clicks   int
	Doubles  int
	Filled   string
	Typed    string
	Selected []string
	Files    []string
	// OnAction runs after every successful action, e.g. to drop a download.
	OnAction func()
}

func (e *Element) do(fn func()) error {
	e.mu.Lock()
	if e.Err != nil {
		e.mu.Unlock()
		return e.Err
	}
	fn()
	hook := e.OnAction
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Click(_ context.Context, double bool) error {
	return e.do(func() {
		if double {
			e.Doubles++
		} else {
			e.Clicks++
		}
	})
}

func (e *Element) Fill(_ context.Context, text string) error {
	return e.do(func() { e.Filled = text })
}

func (e *Element) Type(_ context.Context, text string) error {
	return e.do(func() { e.Typed += text })
}

func (e *Element) SelectOptions(_ context.Context, values []string) error {
	return e.do(func() { e.Selected = append([]string(nil), values...) })
}

func (e *Element) Options(context.Context) ([]entity.SelectOption, error) {
	return e.Opts, nil
}

func (e *Element) SetFiles(_ context.Context, paths []string) error {
	return e.do(func() { e.Files = append([]string(nil), paths...) })
}

// Browser resolves commands from a fixed table. Unknown commands fail with
// ErrNotFound; Failures makes a known command fail a number of times first.
type Browser struct {
	mu sync.Mutex

	URL       string
	PageTitle string
	Elements  map[string]*Element
	Failures  map[string]int
	Indexed   []*Element
	Snap      *entity.PageSnapshot
	SnapErr   error
	Shot      *entity.Screenshot
	Page      string
	Responses []entity.NetworkResponse
	EvalFunc  func(script string) (any, error)
	NewTab    bool

	Resolved    []string
	Navigations []string
	Backs       int
	Loads       []time.Duration
	TabWaits    []time.Duration
	DownloadDir string
	Closed      bool
}

func NewBrowser(url string) *Browser {
	return &Browser{URL: url, Elements: map[string]*Element{}, Failures: map[string]int{}}
}

func (b *Browser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Navigations = append(b.Navigations, url)
	b.URL = url
	return nil
}

func (b *Browser) GoBack(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Backs++
	return nil
}

func (b *Browser) Resolve(_ context.Context, command string) (output.ElementHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Resolved = append(b.Resolved, command)
	if b.Failures[command] > 0 {
		b.Failures[command]--
		return nil, fmt.Errorf("%s: %w", command, ErrNotFound)
	}
	el, ok := b.Elements[command]
	if !ok {
		return nil, fmt.Errorf("%s: %w", command, ErrNotFound)
	}
	return el, nil
}

func (b *Browser) ElementByIndex(_ context.Context, index int) (output.ElementHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.Indexed) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	return b.Indexed[index], nil
}

func (b *Browser) Snapshot(context.Context, entity.SnapshotOptions) (*entity.PageSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SnapErr != nil {
		return nil, b.SnapErr
	}
	if b.Snap != nil {
		return b.Snap, nil
	}
	snap := &entity.PageSnapshot{URL: b.URL, Title: b.PageTitle}
	for i := range b.Indexed {
		snap.Elements = append(snap.Elements, entity.UIElement{Index: i, Tag: "button"})
		snap.Axtree += fmt.Sprintf("[%d] button\n", i)
	}
	return snap, nil
}

func (b *Browser) Screenshot(context.Context) (*entity.Screenshot, error) {
	if b.Shot == nil {
		return nil, errors.New("no screenshot")
	}
	return b.Shot, nil
}

func (b *Browser) HTML(context.Context) (string, error) {
	return b.Page, nil
}

func (b *Browser) Evaluate(_ context.Context, script string) (any, error) {
	if b.EvalFunc == nil {
		return nil, nil
	}
	return b.EvalFunc(script)
}

func (b *Browser) WaitForLoad(_ context.Context, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Loads = append(b.Loads, timeout)
	return nil
}

func (b *Browser) HandleNewTabs(_ context.Context, timeout time.Duration) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.TabWaits = append(b.TabWaits, timeout)
	if b.NewTab && timeout > 0 {
		b.NewTab = false
		return true, time.Millisecond
	}
	return false, 0
}

func (b *Browser) SetDownloadDirectory(_ context.Context, dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DownloadDir = dir
	return nil
}

func (b *Browser) NetworkResponses(context.Context) ([]entity.NetworkResponse, error) {
	return b.Responses, nil
}

func (b *Browser) CurrentURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.URL
}

func (b *Browser) Title() string { return b.PageTitle }

func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
}

// LLM answers requests from a queue of JSON documents.
type LLM struct {
	mu sync.Mutex

	Answers  []string
	Err      error
	Usage    entity.TokenUsage
	Requests []output.PredictRequest
}

func (l *LLM) PredictStructured(_ context.Context, req output.PredictRequest) (*output.PredictResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Requests = append(l.Requests, req)
	if l.Err != nil {
		return nil, l.Err
	}
	if len(l.Answers) == 0 {
		return nil, errors.New("no scripted answer")
	}
	answer := l.Answers[0]
	l.Answers = l.Answers[1:]
	if !json.Valid([]byte(answer)) {
		return &output.PredictResponse{Usage: l.Usage, Model: "fake"}, fmt.Errorf("invalid scripted answer %q", answer)
	}
	return &output.PredictResponse{Content: json.RawMessage(answer), Usage: l.Usage, Model: "fake"}, nil
}

// Trace keeps every saved snapshot in memory.
type Trace struct {
	mu sync.Mutex

	Saves    int
	Dirs     []string
	Steps    []int
	Executed [][]*entity.ActionNode
	Memories [][]byte
	Err      error
}

func (t *Trace) Save(_ context.Context, dir string, executed []*entity.ActionNode, mem *entity.Memory) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	data, err := mem.MarshalIndent()
	if err != nil {
		return err
	}
	t.Saves++
	t.Dirs = append(t.Dirs, dir)
	t.Steps = append(t.Steps, mem.AutomationState.StepIndex)
	t.Executed = append(t.Executed, append([]*entity.ActionNode(nil), executed...))
	t.Memories = append(t.Memories, data)
	return nil
}

type Secrets struct {
	Code     *output.TwoFactorCode
	Err      error
	Requests []output.TwoFactorRequest
}

func (s *Secrets) FetchTwoFactorCode(_ context.Context, req output.TwoFactorRequest) (*output.TwoFactorCode, error) {
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Code, nil
}

var _ output.ProgressPort = (*Progress)(nil)

// Progress records reported events as short strings.
type Progress struct {
	mu     sync.Mutex
	Events []string
}

func (p *Progress) add(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, fmt.Sprintf(format, args...))
}

func (p *Progress) ShowStep(_ context.Context, step int, kind, detail string) {
	p.add("step %d %s", step, kind)
}

func (p *Progress) ShowStepResult(_ context.Context, step int, err error) {
	p.add("result %d %v", step, err)
}

func (p *Progress) ShowFallback(_ context.Context, step int, reason string) {
	p.add("fallback %d %s", step, reason)
}

func (p *Progress) ShowSummary(_ context.Context, taskID, status string, downloads []string) {
	p.add("summary %s %s %d", taskID, status, len(downloads))
}
