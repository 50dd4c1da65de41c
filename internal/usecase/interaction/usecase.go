package interaction

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"time"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/usecase/retry"
	"optexity/internal/usecase/selectmatch"
)

// errNotPerformed tells the download capture that no element was acted on,
// so there is nothing to wait for.
var errNotPerformed = errors.New("interaction not performed")

type IndexPredictor interface {
	Predict(ctx context.Context, mem *entity.Memory, instructions string) (int, bool)
}

type OptionMatcher interface {
	Match(ctx context.Context, options []entity.SelectOption, patterns []string, mem *entity.Memory) selectmatch.Result
}

type DownloadCapturer interface {
	Capture(ctx context.Context, mem *entity.Memory, watchDir, dest string, trigger func(ctx context.Context) error) (string, error)
}

// elementAction performs the interaction on a resolved element.
type elementAction func(ctx context.Context, el output.ElementHandle) error

type UseCase struct {
	browser   output.BrowserPort
	predictor IndexPredictor
	matcher   OptionMatcher
	downloads DownloadCapturer
	progress  output.ProgressPort
	logger    output.LoggerPort
	metrics   output.MetricsPort
	now       func() time.Time
}

func New(
	browser output.BrowserPort,
	predictor IndexPredictor,
	matcher OptionMatcher,
	downloads DownloadCapturer,
	progress output.ProgressPort,
	logger output.LoggerPort,
	metrics output.MetricsPort,
) *UseCase {
	return &UseCase{
		browser:   browser,
		predictor: predictor,
		matcher:   matcher,
		downloads: downloads,
		progress:  progress,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Execute performs one interaction. Only navigation errors, asserted locator
// failures and context cancellation are returned; a failed fallback is logged.
func (uc *UseCase) Execute(ctx context.Context, a *entity.InteractionAction, mem *entity.Memory, ws entity.Workspace) error {
	if a.StartTwoFactorTimer {
		now := uc.now().UTC()
		mem.AutomationState.StartTwoFactorAt = &now
	}

	switch {
	case a.GoToURL != nil:
		uc.log(ctx).Info("Navigating", "url", a.GoToURL.URL)
		return uc.browser.Navigate(ctx, a.GoToURL.URL)

	case a.GoBack != nil:
		return uc.browser.GoBack(ctx)

	case a.ClickElement != nil:
		c := a.ClickElement
		act := func(ctx context.Context, el output.ElementHandle) error {
			return el.Click(ctx, c.DoubleClick)
		}
		return uc.withDownload(ctx, mem, ws, c.ExpectDownload, c.DownloadFilename, func(ctx context.Context) error {
			return uc.perform(ctx, a, c.LocatorAction, mem, act)
		})

	case a.InputText != nil:
		in := a.InputText
		return uc.ignoreNotPerformed(uc.perform(ctx, a, in.LocatorAction, mem, func(ctx context.Context, el output.ElementHandle) error {
			if in.FillOrType == entity.FillOrTypeType {
				return el.Type(ctx, in.InputText)
			}
			return el.Fill(ctx, in.InputText)
		}))

	case a.SelectOption != nil:
		s := a.SelectOption
		// a match is reused by later tries while the option list is unchanged
		var (
			matchedFor []entity.SelectOption
			matched    *selectmatch.Result
		)
		act := func(tryCtx context.Context, el output.ElementHandle) error {
			options, err := el.Options(tryCtx)
			if err != nil {
				return err
			}
			if matched == nil || !slices.Equal(options, matchedFor) {
				// matching may call the model, so it is not bound by the try timeout
				res := uc.matcher.Match(ctx, options, s.SelectValues, mem)
				uc.log(ctx).Debug("Matched select values", "patterns", s.SelectValues, "values", res.Values, "tier", res.Tier)
				matched, matchedFor = &res, options
			}
			return el.SelectOptions(tryCtx, matched.Values)
		}
		return uc.withDownload(ctx, mem, ws, s.ExpectDownload, s.DownloadFilename, func(ctx context.Context) error {
			return uc.perform(ctx, a, s.LocatorAction, mem, act)
		})

	case a.UploadFile != nil:
		u := a.UploadFile
		return uc.ignoreNotPerformed(uc.perform(ctx, a, u.LocatorAction, mem, func(ctx context.Context, el output.ElementHandle) error {
			return el.SetFiles(ctx, []string{u.FilePath})
		}))
	}
	return entity.ConfigErrorf("interaction_action has no payload")
}

// perform tries the declarative command first and falls back to index
// prediction. It returns errNotPerformed when neither path acted.
func (uc *UseCase) perform(ctx context.Context, a *entity.InteractionAction, loc entity.LocatorAction, mem *entity.Memory, act elementAction) error {
	name := a.Name()
	log := uc.log(ctx).WithFields(map[string]any{
		"action":     name,
		"step_index": mem.AutomationState.StepIndex,
	})

	if loc.Command != "" {
		policy := retry.FromInteraction(a, loc)
		policy.OnAttempt = func(try int) { mem.AutomationState.TryIndex = try }
		policy.OnFailure = func(try int, err error) {
			uc.metrics.IncLocatorRetry()
			log.Debug("Command attempt failed", "try", try+1, "command", loc.Command, "error", err)
		}

		err := policy.Do(ctx, func(ctx context.Context) error {
			el, err := uc.browser.Resolve(ctx, loc.Command)
			if err != nil {
				return err
			}
			return act(ctx, el)
		})
		if err == nil {
			return nil
		}
		var assertErr *entity.AssertLocatorPresenceError
		if errors.As(err, &assertErr) {
			log.Error("Asserted locator not found", "command", loc.Command, "error", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Command exhausted its tries", "command", loc.Command, "tries", a.MaxTries, "error", err)
	}

	if loc.SkipPrompt {
		log.Info("Skipping prediction fallback")
		return errNotPerformed
	}
	return uc.fallback(ctx, a, loc, mem, act, log)
}

func (uc *UseCase) fallback(ctx context.Context, a *entity.InteractionAction, loc entity.LocatorAction, mem *entity.Memory, act elementAction, log output.LoggerPort) error {
	name := a.Name()
	uc.metrics.IncFallback(name)
	uc.progress.ShowFallback(ctx, mem.AutomationState.StepIndex, loc.PromptInstructions)

	index, ok := uc.predictor.Predict(ctx, mem, loc.PromptInstructions)
	if !ok {
		log.Warn("No element predicted, skipping action", "instructions", loc.PromptInstructions)
		return errNotPerformed
	}

	el, err := uc.browser.ElementByIndex(ctx, index)
	if err == nil {
		actCtx, cancel := context.WithTimeout(ctx, a.PerTryTimeout())
		err = act(actCtx, el)
		cancel()
	}
	if err != nil {
		log.Error("Fallback action failed", "index", index, "error", err)
		return errNotPerformed
	}
	log.Info("Fallback action succeeded", "index", index)
	return nil
}

func (uc *UseCase) withDownload(ctx context.Context, mem *entity.Memory, ws entity.Workspace, expect bool, filename string, trigger func(ctx context.Context) error) error {
	if !expect {
		return uc.ignoreNotPerformed(trigger(ctx))
	}
	dest := filepath.Join(ws.DownloadsDirectory, filename)
	_, err := uc.downloads.Capture(ctx, mem, ws.TempDownloadsDirectory, dest, trigger)
	if errors.Is(err, errNotPerformed) {
		uc.log(ctx).Warn("Download not triggered", "filename", filename)
		return nil
	}
	return err
}

func (uc *UseCase) ignoreNotPerformed(err error) error {
	if errors.Is(err, errNotPerformed) {
		return nil
	}
	return err
}

func (uc *UseCase) log(ctx context.Context) output.LoggerPort {
	return output.LoggerFromContext(ctx, uc.logger)
}
