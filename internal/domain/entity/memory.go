package entity

import (
	"encoding/json"
	"sync"
	"time"
)

type Variables struct {
	InputVariables     map[string][]string `json:"input_variables"`
	GeneratedVariables map[string][]string `json:"generated_variables"`
	OutputData         []map[string]any    `json:"output_data"`
}

// Lookup resolves a name against input variables first, then generated ones.
func (v *Variables) Lookup(name string) ([]string, bool) {
	if values, ok := v.InputVariables[name]; ok {
		return values, true
	}
	values, ok := v.GeneratedVariables[name]
	return values, ok
}

type BrowserState struct {
	URL         string `json:"url"`
	Screenshot  string `json:"screenshot,omitempty"`
	Title       string `json:"title,omitempty"`
	Axtree      string `json:"axtree,omitempty"`
	FinalPrompt string `json:"final_prompt,omitempty"`
	LLMResponse any    `json:"llm_response,omitempty"`
}

type AutomationState struct {
	StepIndex        int        `json:"step_index"`
	TryIndex         int        `json:"try_index"`
	StartTwoFactorAt *time.Time `json:"start_2fa_time,omitempty"`
}

type TokenUsage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	ToolUseTokens  int `json:"tool_use_tokens"`
	ThoughtsTokens int `json:"thoughts_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

func (t TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:    t.InputTokens + o.InputTokens,
		OutputTokens:   t.OutputTokens + o.OutputTokens,
		ToolUseTokens:  t.ToolUseTokens + o.ToolUseTokens,
		ThoughtsTokens: t.ThoughtsTokens + o.ThoughtsTokens,
		TotalTokens:    t.TotalTokens + o.TotalTokens,
	}
}

// Memory is the execution state of one automation run. It is passed by
// pointer through every component; only the download fields are guarded.
type Memory struct {
	Variables       Variables       `json:"variables"`
	BrowserStates   []BrowserState  `json:"browser_states"`
	AutomationState AutomationState `json:"automation_state"`
	TokenUsage      TokenUsage      `json:"token_usage"`
	Downloads       []string        `json:"downloads"`
	RawDownloads    map[string]bool `json:"raw_downloads"`

	downloadMu sync.Mutex
}

func NewMemory(input map[string][]string) *Memory {
	vars := make(map[string][]string, len(input))
	for k, v := range input {
		vars[k] = append([]string(nil), v...)
	}
	return &Memory{
		Variables: Variables{
			InputVariables:     vars,
			GeneratedVariables: make(map[string][]string),
			OutputData:         []map[string]any{},
		},
		BrowserStates:   []BrowserState{},
		AutomationState: AutomationState{StepIndex: -1},
		Downloads:       []string{},
		RawDownloads:    make(map[string]bool),
	}
}

func (m *Memory) AppendBrowserState(url string) {
	m.BrowserStates = append(m.BrowserStates, BrowserState{URL: url})
}

// CurrentBrowserState returns the tail entry, creating one if the log is empty.
func (m *Memory) CurrentBrowserState() *BrowserState {
	if len(m.BrowserStates) == 0 {
		m.BrowserStates = append(m.BrowserStates, BrowserState{})
	}
	return &m.BrowserStates[len(m.BrowserStates)-1]
}

func (m *Memory) SetGenerated(name string, values []string) {
	if m.Variables.GeneratedVariables == nil {
		m.Variables.GeneratedVariables = make(map[string][]string)
	}
	m.Variables.GeneratedVariables[name] = values
}

func (m *Memory) AppendOutput(data map[string]any) {
	m.Variables.OutputData = append(m.Variables.OutputData, data)
}

func (m *Memory) AddTokenUsage(u TokenUsage) {
	m.TokenUsage = m.TokenUsage.Add(u)
}

// ClaimDownload marks a temp file as taken. It returns false if another
// attempt already claimed it.
func (m *Memory) ClaimDownload(path string) bool {
	m.downloadMu.Lock()
	defer m.downloadMu.Unlock()
	if m.RawDownloads == nil {
		m.RawDownloads = make(map[string]bool)
	}
	if m.RawDownloads[path] {
		return false
	}
	m.RawDownloads[path] = true
	return true
}

func (m *Memory) IsClaimed(path string) bool {
	m.downloadMu.Lock()
	defer m.downloadMu.Unlock()
	return m.RawDownloads[path]
}

func (m *Memory) RecordDownload(path string) {
	m.downloadMu.Lock()
	defer m.downloadMu.Unlock()
	m.Downloads = append(m.Downloads, path)
}

func (m *Memory) DownloadPaths() []string {
	m.downloadMu.Lock()
	defer m.downloadMu.Unlock()
	return append([]string(nil), m.Downloads...)
}

// MarshalIndent serializes the whole memory for the trace files.
func (m *Memory) MarshalIndent() ([]byte, error) {
	m.downloadMu.Lock()
	defer m.downloadMu.Unlock()
	type alias Memory
	return json.MarshalIndent((*alias)(m), "", "    ")
}
