package output

import (
	"context"
	"time"

	"optexity/internal/domain/entity"
)

type BrowserPort interface {
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error

	// Resolve turns a declarative locator command into a live element. It
	// makes a single attempt bounded by ctx.
	Resolve(ctx context.Context, command string) (ElementHandle, error)
	// ElementByIndex returns the element numbered index in the last Snapshot.
	ElementByIndex(ctx context.Context, index int) (ElementHandle, error)

	Snapshot(ctx context.Context, opts entity.SnapshotOptions) (*entity.PageSnapshot, error)
	Screenshot(ctx context.Context) (*entity.Screenshot, error)
	HTML(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string) (any, error)

	// WaitForLoad waits for the current page load state, up to timeout.
	WaitForLoad(ctx context.Context, timeout time.Duration) error
	// HandleNewTabs switches to a newly opened tab if one appears within timeout.
	HandleNewTabs(ctx context.Context, timeout time.Duration) (bool, time.Duration)
	SetDownloadDirectory(ctx context.Context, dir string) error
	NetworkResponses(ctx context.Context) ([]entity.NetworkResponse, error)

	CurrentURL() string
	Title() string
	Close()
}

type ElementHandle interface {
	Click(ctx context.Context, double bool) error
	Fill(ctx context.Context, text string) error
	Type(ctx context.Context, text string) error
	SelectOptions(ctx context.Context, values []string) error
	Options(ctx context.Context) ([]entity.SelectOption, error)
	SetFiles(ctx context.Context, paths []string) error
}
