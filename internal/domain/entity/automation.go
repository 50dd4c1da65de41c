package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	maxSleepSeconds              = 10.0
	DefaultMaxNewTabWaitTime     = 10.0
	interactionEndSleepSeconds   = 1.0
	nonInteractionBeforeSleepSec = 3.0
)

// Node is either an *ActionNode or a *ForLoopNode.
type Node interface {
	isNode()
}

type ActionNode struct {
	InteractionAction   *InteractionAction   `json:"interaction_action,omitempty"`
	AssertionAction     *AssertionAction     `json:"assertion_action,omitempty"`
	ExtractionAction    *ExtractionAction    `json:"extraction_action,omitempty"`
	ScriptAction        *ScriptAction        `json:"python_script_action,omitempty"`
	TwoFactorAuthAction *TwoFactorAuthAction `json:"two_fa_action,omitempty"`

	// Nil sleep values are filled in by Validate from the action kind.
	BeforeSleepTime   *float64 `json:"before_sleep_time,omitempty"`
	EndSleepTime      *float64 `json:"end_sleep_time,omitempty"`
	ExpectNewTab      bool     `json:"expect_new_tab,omitempty"`
	MaxNewTabWaitTime *float64 `json:"max_new_tab_wait_time,omitempty"`
}

func (*ActionNode) isNode() {}

type ForLoopNode struct {
	VariableName string        `json:"variable_name"`
	Nodes        []*ActionNode `json:"nodes"`
}

func (*ForLoopNode) isNode() {}

type Parameters struct {
	InputParameters     map[string][]string `json:"input_parameters,omitempty"`
	GeneratedParameters map[string][]string `json:"generated_parameters,omitempty"`
}

type Automation struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	URL         string      `json:"url,omitempty"`
	Parameters  *Parameters `json:"parameters,omitempty"`
	Nodes       []Node      `json:"nodes"`
}

func (a *Automation) UnmarshalJSON(data []byte) error {
	type alias Automation
	var raw struct {
		alias
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Automation(raw.alias)
	a.Nodes = make([]Node, 0, len(raw.Nodes))
	for i, msg := range raw.Nodes {
		node, err := decodeNode(msg)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		a.Nodes = append(a.Nodes, node)
	}
	return nil
}

func decodeNode(msg json.RawMessage) (Node, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields["variable_name"]; ok {
		var loop ForLoopNode
		if err := strictUnmarshal(msg, &loop); err != nil {
			return nil, err
		}
		return &loop, nil
	}
	var node ActionNode
	if err := strictUnmarshal(msg, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return configErrorf("%v", err)
	}
	return nil
}

// Validate checks every node and fills in kind-dependent defaults.
func (a *Automation) Validate() error {
	if len(a.Nodes) == 0 {
		return configErrorf("automation %q has no nodes", a.Name)
	}
	for i, n := range a.Nodes {
		switch node := n.(type) {
		case *ActionNode:
			if err := node.Validate(); err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
		case *ForLoopNode:
			if err := node.Validate(); err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
		default:
			return configErrorf("node %d has unknown type %T", i, n)
		}
	}
	return nil
}

func (f *ForLoopNode) Validate() error {
	if f.VariableName == "" {
		return configErrorf("for loop needs a variable_name")
	}
	if len(f.Nodes) == 0 {
		return configErrorf("for loop over %q has no nodes", f.VariableName)
	}
	for i, n := range f.Nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("loop node %d: %w", i, err)
		}
	}
	return nil
}

// Expand unrolls the loop into len(values) copies of the template nodes. Only
// the index placeholder {name[index]} is rewritten; values are substituted later.
func (f *ForLoopNode) Expand(values []string) []*ActionNode {
	pattern := "{" + f.VariableName + "[index]}"
	out := make([]*ActionNode, 0, len(values)*len(f.Nodes))
	for i := range values {
		replacement := "{" + f.VariableName + "[" + strconv.Itoa(i) + "]}"
		for _, tmpl := range f.Nodes {
			node := tmpl.Clone()
			node.Replace(pattern, replacement)
			out = append(out, node)
		}
	}
	return out
}

// Action returns the single populated payload.
func (n *ActionNode) Action() Action {
	switch {
	case n.InteractionAction != nil:
		return n.InteractionAction
	case n.AssertionAction != nil:
		return n.AssertionAction
	case n.ExtractionAction != nil:
		return n.ExtractionAction
	case n.ScriptAction != nil:
		return n.ScriptAction
	case n.TwoFactorAuthAction != nil:
		return n.TwoFactorAuthAction
	}
	return nil
}

func (n *ActionNode) actions() []Action {
	var set []Action
	if n.InteractionAction != nil {
		set = append(set, n.InteractionAction)
	}
	if n.AssertionAction != nil {
		set = append(set, n.AssertionAction)
	}
	if n.ExtractionAction != nil {
		set = append(set, n.ExtractionAction)
	}
	if n.ScriptAction != nil {
		set = append(set, n.ScriptAction)
	}
	if n.TwoFactorAuthAction != nil {
		set = append(set, n.TwoFactorAuthAction)
	}
	return set
}

func (n *ActionNode) Validate() error {
	set := n.actions()
	if len(set) != 1 {
		return configErrorf("exactly one of interaction_action, assertion_action, extraction_action, python_script_action or two_fa_action must be provided, got %d", len(set))
	}
	action := set[0]
	if err := action.validate(); err != nil {
		return err
	}

	if n.BeforeSleepTime == nil {
		v := 0.0
		switch action.Kind() {
		case KindExtraction, KindAssertion, KindScript:
			v = nonInteractionBeforeSleepSec
		}
		n.BeforeSleepTime = &v
	}
	if n.EndSleepTime == nil {
		v := 0.0
		if action.Kind() == KindInteraction {
			v = interactionEndSleepSeconds
		}
		n.EndSleepTime = &v
	}
	if err := checkSleep("before_sleep_time", *n.BeforeSleepTime); err != nil {
		return err
	}
	if err := checkSleep("end_sleep_time", *n.EndSleepTime); err != nil {
		return err
	}

	if n.ExpectNewTab {
		if action.Kind() != KindInteraction {
			return configErrorf("expect_new_tab is only allowed for interaction actions")
		}
		if n.MaxNewTabWaitTime == nil {
			v := DefaultMaxNewTabWaitTime
			n.MaxNewTabWaitTime = &v
		}
		if err := checkSleep("max_new_tab_wait_time", *n.MaxNewTabWaitTime); err != nil {
			return err
		}
	} else {
		v := 0.0
		n.MaxNewTabWaitTime = &v
	}
	return nil
}

func checkSleep(name string, v float64) error {
	if v < 0 || v > maxSleepSeconds {
		return configErrorf("%s must be between 0 and %v seconds, got %v", name, maxSleepSeconds, v)
	}
	return nil
}

func (n *ActionNode) BeforeSleep() time.Duration { return seconds(n.BeforeSleepTime) }
func (n *ActionNode) EndSleep() time.Duration    { return seconds(n.EndSleepTime) }
func (n *ActionNode) NewTabWait() time.Duration  { return seconds(n.MaxNewTabWaitTime) }

func seconds(v *float64) time.Duration {
	if v == nil {
		return 0
	}
	return time.Duration(*v * float64(time.Second))
}

// Replace rewrites every occurrence of old in the textual fields of the node.
func (n *ActionNode) Replace(old, new string) {
	for _, a := range n.actions() {
		a.replace(old, new)
	}
}

// ReplaceVariables substitutes {name[i]} with vars[name][i] for every bound
// name and index. Unknown names and out-of-range indexes stay verbatim.
func (n *ActionNode) ReplaceVariables(vars map[string][]string) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for i, value := range vars[name] {
			n.Replace(Placeholder(name, i), value)
		}
	}
}

func Placeholder(name string, index int) string {
	var sb strings.Builder
	sb.WriteByte('{')
	sb.WriteString(name)
	sb.WriteByte('[')
	sb.WriteString(strconv.Itoa(index))
	sb.WriteString("]}")
	return sb.String()
}

// Clone returns a deep copy of the node.
func (n *ActionNode) Clone() *ActionNode {
	data, err := json.Marshal(n)
	if err != nil {
		panic(fmt.Sprintf("clone action node: %v", err))
	}
	var out ActionNode
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("clone action node: %v", err))
	}
	return &out
}

// LocatorCommand returns the element command of the node, or "" when the
// action does not target an element.
func (n *ActionNode) LocatorCommand() string {
	switch {
	case n.AssertionAction != nil:
		return n.AssertionAction.Command
	case n.InteractionAction == nil:
		return ""
	}
	a := n.InteractionAction
	switch {
	case a.ClickElement != nil:
		return a.ClickElement.Command
	case a.InputText != nil:
		return a.InputText.Command
	case a.SelectOption != nil:
		return a.SelectOption.Command
	case a.UploadFile != nil:
		return a.UploadFile.Command
	}
	return ""
}

// CheckCommands calls check with every locator command, loop templates
// included, and reports the first failure as a configuration error.
func (a *Automation) CheckCommands(check func(command string) error) error {
	verify := func(where string, n *ActionNode) error {
		command := n.LocatorCommand()
		if command == "" {
			return nil
		}
		if err := check(command); err != nil {
			return configErrorf("%s: command %q: %v", where, command, err)
		}
		return nil
	}
	for i, n := range a.Nodes {
		switch node := n.(type) {
		case *ActionNode:
			if err := verify(fmt.Sprintf("node %d", i), node); err != nil {
				return err
			}
		case *ForLoopNode:
			for j, tmpl := range node.Nodes {
				if err := verify(fmt.Sprintf("node %d loop node %d", i, j), tmpl); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
