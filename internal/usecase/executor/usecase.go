package executor

import (
	"context"
	"fmt"
	"time"

	"optexity/internal/application/port/input"
	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/usecase/retry"
)

var _ input.AutomationRunner = (*UseCase)(nil)

type InteractionHandler interface {
	Execute(ctx context.Context, a *entity.InteractionAction, mem *entity.Memory, ws entity.Workspace) error
}

type ExtractionHandler interface {
	Execute(ctx context.Context, a *entity.ExtractionAction, mem *entity.Memory) error
}

type TwoFactorHandler interface {
	Execute(ctx context.Context, a *entity.TwoFactorAuthAction, mem *entity.Memory) error
}

// UseCase runs the nodes of an automation one after another against a
// single browser session.
type UseCase struct {
	browser     output.BrowserPort
	interaction InteractionHandler
	extraction  ExtractionHandler
	twoFactor   TwoFactorHandler
	trace       output.TraceStore
	progress    output.ProgressPort
	logger      output.LoggerPort
	metrics     output.MetricsPort
}

func New(
	browser output.BrowserPort,
	interaction InteractionHandler,
	extraction ExtractionHandler,
	twoFactor TwoFactorHandler,
	trace output.TraceStore,
	progress output.ProgressPort,
	logger output.LoggerPort,
	metrics output.MetricsPort,
) *UseCase {
	return &UseCase{
		browser:     browser,
		interaction: interaction,
		extraction:  extraction,
		twoFactor:   twoFactor,
		trace:       trace,
		progress:    progress,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run stops at the first failing node. The automation itself is never
// modified: every node is copied before variables are substituted.
func (uc *UseCase) Run(ctx context.Context, automation *entity.Automation, mem *entity.Memory, ws entity.Workspace) error {
	mem.AutomationState.StepIndex = -1
	mem.AutomationState.TryIndex = 0

	var executed []*entity.ActionNode
	for _, n := range automation.Nodes {
		nodes, err := uc.expand(ctx, n, mem)
		if err != nil {
			return err
		}

		for _, node := range nodes {
			executed = append(executed, node)
			err := uc.runNode(ctx, node, mem, ws)
			uc.save(ctx, ws, executed, mem)
			if err != nil {
				return err
			}
		}
	}
	uc.log(ctx).Info("Automation finished", "name", automation.Name, "steps", mem.AutomationState.StepIndex+1)
	return nil
}

func (uc *UseCase) expand(ctx context.Context, n entity.Node, mem *entity.Memory) ([]*entity.ActionNode, error) {
	switch node := n.(type) {
	case *entity.ActionNode:
		return []*entity.ActionNode{node.Clone()}, nil
	case *entity.ForLoopNode:
		values, ok := mem.Variables.Lookup(node.VariableName)
		if !ok {
			return nil, entity.ConfigErrorf("loop variable %q not found in input or generated variables", node.VariableName)
		}
		nodes := node.Expand(values)
		uc.log(ctx).Debug("Expanded for loop", "variable", node.VariableName, "values", len(values), "nodes", len(nodes))
		return nodes, nil
	}
	return nil, entity.ConfigErrorf("unknown node type %T", n)
}

func (uc *UseCase) runNode(ctx context.Context, node *entity.ActionNode, mem *entity.Memory, ws entity.Workspace) error {
	uc.browser.HandleNewTabs(ctx, 0)

	mem.AutomationState.StepIndex++
	mem.AutomationState.TryIndex = 0
	step := mem.AutomationState.StepIndex

	node.ReplaceVariables(mem.Variables.InputVariables)
	node.ReplaceVariables(mem.Variables.GeneratedVariables)
	mem.AppendBrowserState(uc.browser.CurrentURL())

	action := node.Action()
	kind := action.Kind()
	log := uc.log(ctx).WithFields(map[string]any{"step_index": step, "kind": kind})
	log.Info("Running node", "detail", describe(action))
	uc.progress.ShowStep(ctx, step, string(kind), describe(action))

	if d := node.BeforeSleep(); d > 0 {
		uc.settle(ctx, d)
	}

	start := time.Now()
	err := uc.dispatch(ctx, action, mem, ws)
	status := "success"
	if err != nil {
		status = "failed"
	}
	uc.metrics.ObserveStep(kind, status, time.Since(start))
	uc.progress.ShowStepResult(ctx, step, err)
	if err != nil {
		log.Error("Node failed", "error", err)
		return fmt.Errorf("node %d: %w", step, err)
	}

	if node.ExpectNewTab {
		found, elapsed := uc.browser.HandleNewTabs(ctx, node.NewTabWait())
		if !found {
			log.Warn("No new tab appeared", "waited", node.NewTabWait())
		} else {
			log.Debug("Switched to new tab", "after", elapsed)
		}
	} else {
		uc.settle(ctx, node.EndSleep())
	}

	log.Debug("Finished node")
	return nil
}

func (uc *UseCase) dispatch(ctx context.Context, action entity.Action, mem *entity.Memory, ws entity.Workspace) error {
	switch a := action.(type) {
	case *entity.InteractionAction:
		return uc.interaction.Execute(ctx, a, mem, ws)
	case *entity.ExtractionAction:
		return uc.extraction.Execute(ctx, a, mem)
	case *entity.TwoFactorAuthAction:
		return uc.twoFactor.Execute(ctx, a, mem)
	case *entity.AssertionAction:
		return uc.assert(ctx, a, mem)
	case *entity.ScriptAction:
		result, err := uc.browser.Evaluate(ctx, a.Script)
		if err != nil {
			return fmt.Errorf("script failed: %w", err)
		}
		uc.log(ctx).Debug("Script evaluated", "result", result)
		return nil
	}
	return entity.ConfigErrorf("unsupported action %T", action)
}

// assert checks that the command resolves, with the default retry budget
// and no prediction fallback.
func (uc *UseCase) assert(ctx context.Context, a *entity.AssertionAction, mem *entity.Memory) error {
	policy := retry.Policy{
		MaxTries:       entity.DefaultMaxTries,
		Delay:          time.Duration(entity.DefaultMaxTimeoutSecondsPerTry * float64(time.Second)),
		AssertPresence: true,
		Command:        a.Command,
		OnAttempt:      func(try int) { mem.AutomationState.TryIndex = try },
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		_, err := uc.browser.Resolve(ctx, a.Command)
		return err
	})
}

// settle waits for the page load state, at most d.
func (uc *UseCase) settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if err := uc.browser.WaitForLoad(ctx, d); err != nil {
		uc.log(ctx).Debug("Page did not reach load state", "timeout", d, "error", err)
	}
}

func (uc *UseCase) save(ctx context.Context, ws entity.Workspace, executed []*entity.ActionNode, mem *entity.Memory) {
	if err := uc.trace.Save(ctx, ws.LogsDirectory, executed, mem); err != nil {
		uc.log(ctx).Error("Cannot persist trace", "dir", ws.LogsDirectory, "error", err)
	}
}

func describe(action entity.Action) string {
	switch a := action.(type) {
	case *entity.InteractionAction:
		return a.Name()
	case *entity.ExtractionAction:
		if a.NetworkCall != nil {
			return "network_call " + a.NetworkCall.URLPattern
		}
		return "llm"
	case *entity.AssertionAction:
		return a.Command
	case *entity.TwoFactorAuthAction:
		if a.Slack != nil {
			return "slack"
		}
		return "email"
	}
	return ""
}

func (uc *UseCase) log(ctx context.Context) output.LoggerPort {
	return output.LoggerFromContext(ctx, uc.logger)
}
