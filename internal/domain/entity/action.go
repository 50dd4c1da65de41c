package entity

import (
	"strings"
	"time"
)

const (
	DefaultMaxTries                = 3
	DefaultMaxTimeoutSecondsPerTry = 2.0
	DefaultTwoFactorMaxWaitTime    = 300.0
)

type FillOrType string

const (
	FillOrTypeFill FillOrType = "fill"
	FillOrTypeType FillOrType = "type"
)

type ExtractionSource string

const (
	SourceAxtree     ExtractionSource = "axtree"
	SourceScreenshot ExtractionSource = "screenshot"
	SourceHTML       ExtractionSource = "html"
)

// Action is the payload carried by an ActionNode. The set of implementations
// is closed: InteractionAction, AssertionAction, ExtractionAction,
// ScriptAction and TwoFactorAuthAction.
type Action interface {
	Kind() ActionKind
	replace(old, new string)
	validate() error
}

type ActionKind string

const (
	KindInteraction   ActionKind = "interaction"
	KindAssertion     ActionKind = "assertion"
	KindExtraction    ActionKind = "extraction"
	KindScript        ActionKind = "script"
	KindTwoFactorAuth ActionKind = "two_factor_auth"
)

// LocatorAction holds the fields shared by every element-targeting interaction.
type LocatorAction struct {
	Command               string `json:"command,omitempty"`
	PromptInstructions    string `json:"prompt_instructions,omitempty"`
	SkipPrompt            bool   `json:"skip_prompt,omitempty"`
	AssertLocatorPresence bool   `json:"assert_locator_presence,omitempty"`
}

func (l *LocatorAction) replaceLocator(old, new string) {
	l.Command = strings.ReplaceAll(l.Command, old, new)
	l.PromptInstructions = strings.ReplaceAll(l.PromptInstructions, old, new)
}

func (l *LocatorAction) validateLocator(name string) error {
	if l.Command == "" && l.PromptInstructions == "" {
		return configErrorf("%s needs a command or prompt_instructions", name)
	}
	if l.Command == "" && l.SkipPrompt {
		return configErrorf("%s has no command and skips the prompt", name)
	}
	return nil
}

type ClickElementAction struct {
	LocatorAction
	DoubleClick      bool   `json:"double_click,omitempty"`
	ExpectDownload   bool   `json:"expect_download,omitempty"`
	DownloadFilename string `json:"download_filename,omitempty"`
}

type InputTextAction struct {
	LocatorAction
	InputText  string     `json:"input_text"`
	FillOrType FillOrType `json:"fill_or_type,omitempty"`
}

type SelectOptionAction struct {
	LocatorAction
	SelectValues     []string `json:"select_values"`
	ExpectDownload   bool     `json:"expect_download,omitempty"`
	DownloadFilename string   `json:"download_filename,omitempty"`
}

type UploadFileAction struct {
	LocatorAction
	FilePath string `json:"file_path"`
}

type GoBackAction struct{}

type GoToURLAction struct {
	URL string `json:"url"`
}

type InteractionAction struct {
	MaxTries                int     `json:"max_tries,omitempty"`
	MaxTimeoutSecondsPerTry float64 `json:"max_timeout_seconds_per_try,omitempty"`
	StartTwoFactorTimer     bool    `json:"start_2fa_timer,omitempty"`

	ClickElement *ClickElementAction `json:"click_element,omitempty"`
	InputText    *InputTextAction    `json:"input_text,omitempty"`
	SelectOption *SelectOptionAction `json:"select_option,omitempty"`
	UploadFile   *UploadFileAction   `json:"upload_file,omitempty"`
	GoBack       *GoBackAction       `json:"go_back,omitempty"`
	GoToURL      *GoToURLAction      `json:"go_to_url,omitempty"`
}

func (a *InteractionAction) Kind() ActionKind { return KindInteraction }

// Name returns the key of the populated interaction payload.
func (a *InteractionAction) Name() string {
	switch {
	case a.ClickElement != nil:
		return "click_element"
	case a.InputText != nil:
		return "input_text"
	case a.SelectOption != nil:
		return "select_option"
	case a.UploadFile != nil:
		return "upload_file"
	case a.GoBack != nil:
		return "go_back"
	case a.GoToURL != nil:
		return "go_to_url"
	}
	return ""
}

func (a *InteractionAction) PerTryTimeout() time.Duration {
	return time.Duration(a.MaxTimeoutSecondsPerTry * float64(time.Second))
}

func (a *InteractionAction) replace(old, new string) {
	switch {
	case a.ClickElement != nil:
		a.ClickElement.replaceLocator(old, new)
		a.ClickElement.DownloadFilename = strings.ReplaceAll(a.ClickElement.DownloadFilename, old, new)
	case a.InputText != nil:
		a.InputText.replaceLocator(old, new)
		a.InputText.InputText = strings.ReplaceAll(a.InputText.InputText, old, new)
	case a.SelectOption != nil:
		a.SelectOption.replaceLocator(old, new)
		for i := range a.SelectOption.SelectValues {
			a.SelectOption.SelectValues[i] = strings.ReplaceAll(a.SelectOption.SelectValues[i], old, new)
		}
		a.SelectOption.DownloadFilename = strings.ReplaceAll(a.SelectOption.DownloadFilename, old, new)
	case a.UploadFile != nil:
		a.UploadFile.replaceLocator(old, new)
		a.UploadFile.FilePath = strings.ReplaceAll(a.UploadFile.FilePath, old, new)
	case a.GoToURL != nil:
		a.GoToURL.URL = strings.ReplaceAll(a.GoToURL.URL, old, new)
	}
}

func (a *InteractionAction) validate() error {
	count := 0
	for _, set := range []bool{
		a.ClickElement != nil, a.InputText != nil, a.SelectOption != nil,
		a.UploadFile != nil, a.GoBack != nil, a.GoToURL != nil,
	} {
		if set {
			count++
		}
	}
	if count != 1 {
		return configErrorf("interaction_action must set exactly one interaction, got %d", count)
	}

	if a.MaxTries == 0 {
		a.MaxTries = DefaultMaxTries
	}
	if a.MaxTries < 0 {
		return configErrorf("max_tries must be positive, got %d", a.MaxTries)
	}
	if a.MaxTimeoutSecondsPerTry == 0 {
		a.MaxTimeoutSecondsPerTry = DefaultMaxTimeoutSecondsPerTry
	}
	if a.MaxTimeoutSecondsPerTry < 0 {
		return configErrorf("max_timeout_seconds_per_try must be positive, got %v", a.MaxTimeoutSecondsPerTry)
	}

	switch {
	case a.ClickElement != nil:
		if err := a.ClickElement.validateLocator("click_element"); err != nil {
			return err
		}
		if a.ClickElement.ExpectDownload && a.ClickElement.DownloadFilename == "" {
			return configErrorf("click_element expects a download but has no download_filename")
		}
	case a.InputText != nil:
		if err := a.InputText.validateLocator("input_text"); err != nil {
			return err
		}
		switch a.InputText.FillOrType {
		case "":
			a.InputText.FillOrType = FillOrTypeFill
		case FillOrTypeFill, FillOrTypeType:
		default:
			return configErrorf("unknown fill_or_type %q", a.InputText.FillOrType)
		}
	case a.SelectOption != nil:
		if err := a.SelectOption.validateLocator("select_option"); err != nil {
			return err
		}
		if len(a.SelectOption.SelectValues) == 0 {
			return configErrorf("select_option needs at least one select value")
		}
		if a.SelectOption.ExpectDownload && a.SelectOption.DownloadFilename == "" {
			return configErrorf("select_option expects a download but has no download_filename")
		}
	case a.UploadFile != nil:
		if err := a.UploadFile.validateLocator("upload_file"); err != nil {
			return err
		}
		if a.UploadFile.FilePath == "" {
			return configErrorf("upload_file needs a file_path")
		}
	case a.GoToURL != nil:
		if a.GoToURL.URL == "" {
			return configErrorf("go_to_url needs a url")
		}
	}
	return nil
}

type AssertionAction struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

func (a *AssertionAction) Kind() ActionKind { return KindAssertion }

func (a *AssertionAction) replace(old, new string) {
	a.Command = strings.ReplaceAll(a.Command, old, new)
	a.Description = strings.ReplaceAll(a.Description, old, new)
}

func (a *AssertionAction) validate() error {
	if a.Command == "" {
		return configErrorf("assertion_action needs a command")
	}
	return nil
}

type ScriptAction struct {
	Script string `json:"script"`
}

func (a *ScriptAction) Kind() ActionKind { return KindScript }

func (a *ScriptAction) replace(old, new string) {
	a.Script = strings.ReplaceAll(a.Script, old, new)
}

func (a *ScriptAction) validate() error {
	if strings.TrimSpace(a.Script) == "" {
		return configErrorf("python_script_action needs a script")
	}
	return nil
}

type LLMExtraction struct {
	Source                 []ExtractionSource `json:"source"`
	ExtractionFormat       map[string]any     `json:"extraction_format"`
	ExtractionInstructions string             `json:"extraction_instructions,omitempty"`
	OutputVariableNames    []string           `json:"output_variable_names,omitempty"`
}

// HasSource reports whether s is one of the requested page representations.
func (e *LLMExtraction) HasSource(s ExtractionSource) bool {
	for _, src := range e.Source {
		if src == s {
			return true
		}
	}
	return false
}

type NetworkCallExtraction struct {
	URLPattern         string `json:"url_pattern"`
	OutputVariableName string `json:"output_variable_name,omitempty"`
}

type ExtractionAction struct {
	LLM         *LLMExtraction         `json:"llm,omitempty"`
	NetworkCall *NetworkCallExtraction `json:"network_call,omitempty"`
}

func (a *ExtractionAction) Kind() ActionKind { return KindExtraction }

func (a *ExtractionAction) replace(old, new string) {
	if a.LLM != nil {
		a.LLM.ExtractionInstructions = strings.ReplaceAll(a.LLM.ExtractionInstructions, old, new)
	}
	if a.NetworkCall != nil {
		a.NetworkCall.URLPattern = strings.ReplaceAll(a.NetworkCall.URLPattern, old, new)
	}
}

func (a *ExtractionAction) validate() error {
	if (a.LLM == nil) == (a.NetworkCall == nil) {
		return configErrorf("extraction_action must set exactly one of llm or network_call")
	}
	if a.NetworkCall != nil {
		if a.NetworkCall.URLPattern == "" {
			return configErrorf("network_call extraction needs a url_pattern")
		}
		return nil
	}

	if len(a.LLM.Source) == 0 {
		a.LLM.Source = []ExtractionSource{SourceAxtree}
	}
	for _, s := range a.LLM.Source {
		switch s {
		case SourceAxtree, SourceScreenshot, SourceHTML:
		default:
			return configErrorf("unknown extraction source %q", s)
		}
	}
	if len(a.LLM.ExtractionFormat) == 0 {
		return configErrorf("llm extraction needs an extraction_format")
	}
	for _, name := range a.LLM.OutputVariableNames {
		if _, ok := a.LLM.ExtractionFormat[name]; !ok {
			return configErrorf("output variable %q is not a key of extraction_format", name)
		}
	}
	return nil
}

type EmailTwoFactorAuth struct {
	IntegrationID string `json:"integration_id"`
	EmailAddress  string `json:"email_address"`
}

type SlackTwoFactorAuth struct {
	IntegrationID string `json:"integration_id"`
	ChannelID     string `json:"channel_id"`
}

type TwoFactorAuthAction struct {
	Email              *EmailTwoFactorAuth `json:"email,omitempty"`
	Slack              *SlackTwoFactorAuth `json:"slack,omitempty"`
	OutputVariableName string              `json:"output_variable_name"`
	MaxWaitTime        float64             `json:"max_wait_time,omitempty"`
}

func (a *TwoFactorAuthAction) Kind() ActionKind { return KindTwoFactorAuth }

func (a *TwoFactorAuthAction) MaxWait() time.Duration {
	return time.Duration(a.MaxWaitTime * float64(time.Second))
}

func (a *TwoFactorAuthAction) replace(old, new string) {
	if a.Email != nil {
		a.Email.EmailAddress = strings.ReplaceAll(a.Email.EmailAddress, old, new)
	}
	if a.Slack != nil {
		a.Slack.ChannelID = strings.ReplaceAll(a.Slack.ChannelID, old, new)
	}
}

func (a *TwoFactorAuthAction) validate() error {
	if (a.Email == nil) == (a.Slack == nil) {
		return configErrorf("two_fa_action must set exactly one of email or slack")
	}
	if a.OutputVariableName == "" {
		return configErrorf("two_fa_action needs an output_variable_name")
	}
	if a.MaxWaitTime == 0 {
		a.MaxWaitTime = DefaultTwoFactorMaxWaitTime
	}
	if a.MaxWaitTime < 0 {
		return configErrorf("max_wait_time must be positive")
	}
	return nil
}
