package interaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/logger"
	"optexity/internal/infrastructure/metrics"
	"optexity/internal/testutil"
	"optexity/internal/usecase/selectmatch"
)

type fakePredictor struct {
	index int
	ok    bool
	calls []string
}

func (f *fakePredictor) Predict(_ context.Context, _ *entity.Memory, instructions string) (int, bool) {
	f.calls = append(f.calls, instructions)
	return f.index, f.ok
}

type fakeCapturer struct {
	watch, dest string
	calls       int
}

func (f *fakeCapturer) Capture(ctx context.Context, _ *entity.Memory, watchDir, dest string, trigger func(context.Context) error) (string, error) {
	f.calls++
	f.watch, f.dest = watchDir, dest
	return dest, trigger(ctx)
}

type fixture struct {
	uc        *UseCase
	browser   *testutil.Browser
	predictor *fakePredictor
	capturer  *fakeCapturer
	progress  *testutil.Progress
	mem       *entity.Memory
}

func newFixture() *fixture {
	f := &fixture{
		browser:   testutil.NewBrowser("https://example.com"),
		predictor: &fakePredictor{},
		capturer:  &fakeCapturer{},
		progress:  &testutil.Progress{},
		mem:       entity.NewMemory(nil),
	}
	f.mem.AppendBrowserState(f.browser.URL)
	matcher := selectmatch.New(nil, logger.NewNop())
	f.uc = New(f.browser, f.predictor, matcher, f.capturer, f.progress, logger.NewNop(), metrics.Nop{})
	return f
}

var ws = entity.Workspace{DownloadsDirectory: "/task/downloads", TempDownloadsDirectory: "/task/temp"}

func interaction(fill func(a *entity.InteractionAction)) *entity.InteractionAction {
	a := &entity.InteractionAction{MaxTries: 3, MaxTimeoutSecondsPerTry: 0.01}
	fill(a)
	return a
}

func TestClick_CommandSucceedsAfterRetries(t *testing.T) {
	f := newFixture()
	el := &testutil.Element{}
	f.browser.Elements["#login"] = el
	f.browser.Failures["#login"] = 2
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{LocatorAction: entity.LocatorAction{Command: "#login", PromptInstructions: "login"}}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Equal(t, 1, el.Clicks)
	assert.Equal(t, 2, f.mem.AutomationState.TryIndex)
	assert.Empty(t, f.predictor.calls)
}

func TestClick_DoubleClick(t *testing.T) {
	f := newFixture()
	el := &testutil.Element{}
	f.browser.Elements["#row"] = el
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{LocatorAction: entity.LocatorAction{Command: "#row"}, DoubleClick: true}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Equal(t, 1, el.Doubles)
	assert.Zero(t, el.Clicks)
}

func TestClick_FallsBackToPrediction(t *testing.T) {
	f := newFixture()
	target := &testutil.Element{}
	f.browser.Indexed = []*testutil.Element{{}, target}
	f.predictor.index, f.predictor.ok = 1, true
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{LocatorAction: entity.LocatorAction{Command: "#gone", PromptInstructions: "Click Submit"}}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Equal(t, 1, target.Clicks)
	assert.Equal(t, []string{"Click Submit"}, f.predictor.calls)
	assert.Len(t, f.browser.Resolved, 3)
	assert.Contains(t, f.progress.Events, "fallback -1 Click Submit")
}

func TestClick_AssertedLocatorAborts(t *testing.T) {
	f := newFixture()
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{LocatorAction: entity.LocatorAction{
			Command: "#next", PromptInstructions: "next", AssertLocatorPresence: true,
		}}
	})

	err := f.uc.Execute(context.Background(), a, f.mem, ws)

	var assertErr *entity.AssertLocatorPresenceError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "#next", assertErr.Command)
	assert.Empty(t, f.predictor.calls)
}

func TestClick_SkipPrompt(t *testing.T) {
	f := newFixture()
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{LocatorAction: entity.LocatorAction{Command: "#gone", SkipPrompt: true}}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Empty(t, f.predictor.calls)
}

func TestClick_NoPredictionIsNotFatal(t *testing.T) {
	f := newFixture()
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{LocatorAction: entity.LocatorAction{PromptInstructions: "Click Save"}}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Empty(t, f.browser.Resolved)
	assert.Equal(t, []string{"Click Save"}, f.predictor.calls)
}

func TestClick_FallbackActionErrorIsLogged(t *testing.T) {
	f := newFixture()
	f.browser.Indexed = []*testutil.Element{{Err: errors.New("detached")}}
	f.predictor.ok = true
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{LocatorAction: entity.LocatorAction{PromptInstructions: "Click"}}
	})

	assert.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))
}

func TestClick_ExpectDownload(t *testing.T) {
	f := newFixture()
	el := &testutil.Element{}
	f.browser.Elements["#export"] = el
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{
			LocatorAction:    entity.LocatorAction{Command: "#export"},
			ExpectDownload:   true,
			DownloadFilename: "report.csv",
		}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Equal(t, 1, f.capturer.calls)
	assert.Equal(t, "/task/temp", f.capturer.watch)
	assert.Equal(t, "/task/downloads/report.csv", f.capturer.dest)
	assert.Equal(t, 1, el.Clicks)
}

func TestClick_ExpectDownloadNothingPerformed(t *testing.T) {
	f := newFixture()
	a := interaction(func(a *entity.InteractionAction) {
		a.ClickElement = &entity.ClickElementAction{
			LocatorAction:    entity.LocatorAction{Command: "#gone", SkipPrompt: true},
			ExpectDownload:   true,
			DownloadFilename: "x.pdf",
		}
	})

	assert.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))
}

func TestInputText_FillAndType(t *testing.T) {
	f := newFixture()
	user, pass := &testutil.Element{}, &testutil.Element{}
	f.browser.Elements["#user"] = user
	f.browser.Elements["#pass"] = pass

	fill := interaction(func(a *entity.InteractionAction) {
		a.InputText = &entity.InputTextAction{LocatorAction: entity.LocatorAction{Command: "#user"}, InputText: "alice", FillOrType: entity.FillOrTypeFill}
	})
	typ := interaction(func(a *entity.InteractionAction) {
		a.InputText = &entity.InputTextAction{LocatorAction: entity.LocatorAction{Command: "#pass"}, InputText: "s3cret", FillOrType: entity.FillOrTypeType}
	})

	require.NoError(t, f.uc.Execute(context.Background(), fill, f.mem, ws))
	require.NoError(t, f.uc.Execute(context.Background(), typ, f.mem, ws))

	assert.Equal(t, "alice", user.Filled)
	assert.Equal(t, "s3cret", pass.Typed)
}

func TestSelectOption_UsesMatcher(t *testing.T) {
	f := newFixture()
	el := &testutil.Element{Opts: []entity.SelectOption{{Value: "AAPL", Label: "Apple"}, {Value: "GOOGL", Label: "Google"}}}
	f.browser.Elements["#ticker"] = el
	a := interaction(func(a *entity.InteractionAction) {
		a.SelectOption = &entity.SelectOptionAction{LocatorAction: entity.LocatorAction{Command: "#ticker"}, SelectValues: []string{"^A.*"}}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Equal(t, []string{"AAPL"}, el.Selected)
}

func TestSelectOption_FallbackUsesPredictedElementOptions(t *testing.T) {
	f := newFixture()
	el := &testutil.Element{Opts: []entity.SelectOption{{Value: "us", Label: "United States"}}}
	f.browser.Indexed = []*testutil.Element{el}
	f.predictor.ok = true
	a := interaction(func(a *entity.InteractionAction) {
		a.SelectOption = &entity.SelectOptionAction{LocatorAction: entity.LocatorAction{PromptInstructions: "Pick the country"}, SelectValues: []string{"United States"}}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Equal(t, []string{"us"}, el.Selected)
}

type countingSemantic struct{ calls int }

func (c *countingSemantic) MatchValues(context.Context, []entity.SelectOption, []string, *entity.Memory) ([]string, error) {
	c.calls++
	return nil, errors.New("model unavailable")
}

func TestSelectOption_MatchesOnceAcrossTries(t *testing.T) {
	f := newFixture()
	semantic := &countingSemantic{}
	f.uc = New(f.browser, f.predictor, selectmatch.New(semantic, logger.NewNop()), f.capturer, f.progress, logger.NewNop(), metrics.Nop{})
	el := &testutil.Element{
		Opts: []entity.SelectOption{{Value: "AAPL", Label: "Apple"}, {Value: "GOOGL", Label: "Google"}},
		Err:  errors.New("option not selectable"),
	}
	f.browser.Elements["#ticker"] = el
	a := interaction(func(a *entity.InteractionAction) {
		a.SelectOption = &entity.SelectOptionAction{
			LocatorAction: entity.LocatorAction{Command: "#ticker", PromptInstructions: "Pick the ticker"},
			SelectValues:  []string{"microsoft"},
		}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Equal(t, 1, semantic.calls)
	assert.Len(t, f.browser.Resolved, 3)
}

func TestUploadFile(t *testing.T) {
	f := newFixture()
	el := &testutil.Element{}
	f.browser.Elements["#file"] = el
	a := interaction(func(a *entity.InteractionAction) {
		a.UploadFile = &entity.UploadFileAction{LocatorAction: entity.LocatorAction{Command: "#file"}, FilePath: "/data/id.pdf"}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	assert.Equal(t, []string{"/data/id.pdf"}, el.Files)
}

func TestNavigation(t *testing.T) {
	f := newFixture()
	goTo := interaction(func(a *entity.InteractionAction) { a.GoToURL = &entity.GoToURLAction{URL: "https://example.com/next"} })
	back := interaction(func(a *entity.InteractionAction) { a.GoBack = &entity.GoBackAction{} })

	require.NoError(t, f.uc.Execute(context.Background(), goTo, f.mem, ws))
	require.NoError(t, f.uc.Execute(context.Background(), back, f.mem, ws))

	assert.Equal(t, []string{"https://example.com/next"}, f.browser.Navigations)
	assert.Equal(t, 1, f.browser.Backs)
}

func TestStartTwoFactorTimer(t *testing.T) {
	f := newFixture()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.uc.now = func() time.Time { return fixed }
	a := interaction(func(a *entity.InteractionAction) {
		a.StartTwoFactorTimer = true
		a.GoToURL = &entity.GoToURLAction{URL: "https://example.com/otp"}
	})

	require.NoError(t, f.uc.Execute(context.Background(), a, f.mem, ws))

	require.NotNil(t, f.mem.AutomationState.StartTwoFactorAt)
	assert.Equal(t, fixed, *f.mem.AutomationState.StartTwoFactorAt)
}
