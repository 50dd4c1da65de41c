package rod

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"time"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/browser/locator"
	"optexity/internal/infrastructure/browser/rodwrapper"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

var (
	_ output.BrowserPort   = (*BrowserAdapter)(nil)
	_ output.ElementHandle = (*element)(nil)
)

const (
	maxResponses  = 200
	newTabPoll    = 250 * time.Millisecond
	screenshotMax = 1024
)

type BrowserConfig struct {
	Headless   bool
	SlowMotion time.Duration
	Timeout    time.Duration
	NoSandbox  bool
	DevTools   bool
	Trace      bool
	Bin        string
	ControlURL string
}

func DefaultConfig() BrowserConfig {
	return BrowserConfig{
		Headless:  true,
		Timeout:   30 * time.Second,
		NoSandbox: true,
	}
}

type response struct {
	requestID proto.NetworkRequestID
	entity.NetworkResponse
}

// BrowserAdapter drives one browser with a single active tab. A tab opened by
// the page becomes the active one through HandleNewTabs.
type BrowserAdapter struct {
	browser *rodwrapper.Browser
	timeout time.Duration

	mu         sync.RWMutex
	page       *rod.Page
	stopEvents context.CancelFunc
	known      map[proto.TargetTargetID]bool

	respMu    sync.Mutex
	responses []response
}

func NewBrowserAdapter(cfg BrowserConfig) (*BrowserAdapter, error) {
	b, err := rodwrapper.Launch(rodwrapper.LaunchConfig{
		Headless:   cfg.Headless,
		NoSandbox:  cfg.NoSandbox,
		DevTools:   cfg.DevTools,
		SlowMotion: cfg.SlowMotion,
		Trace:      cfg.Trace,
		Bin:        cfg.Bin,
		ControlURL: cfg.ControlURL,
	})
	if err != nil {
		return nil, err
	}

	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	a := &BrowserAdapter{
		browser: b,
		timeout: cfg.Timeout,
		known:   map[proto.TargetTargetID]bool{},
	}
	if pages, err := b.Pages(); err == nil {
		for _, p := range pages {
			a.known[p.TargetID] = true
		}
	}
	a.attach(page)
	return a, nil
}

// attach makes page the active tab and starts recording its responses.
func (b *BrowserAdapter) attach(page *rod.Page) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopEvents != nil {
		b.stopEvents()
	}
	b.known[page.TargetID] = true

	ctx, cancel := context.WithCancel(context.Background())
	b.stopEvents = cancel
	b.page = page

	_ = proto.NetworkEnable{}.Call(page)
	wait := page.Context(ctx).EachEvent(func(e *proto.NetworkResponseReceived) {
		b.recordResponse(e)
	})
	go wait()

	_, _ = page.Activate()
}

func (b *BrowserAdapter) recordResponse(e *proto.NetworkResponseReceived) {
	if e.Type != proto.NetworkResourceTypeXHR && e.Type != proto.NetworkResourceTypeFetch && e.Type != proto.NetworkResourceTypeDocument {
		return
	}
	b.respMu.Lock()
	defer b.respMu.Unlock()
	b.responses = append(b.responses, response{
		requestID: e.RequestID,
		NetworkResponse: entity.NetworkResponse{
			URL:      e.Response.URL,
			Status:   e.Response.Status,
			MIMEType: e.Response.MIMEType,
		},
	})
	if len(b.responses) > maxResponses {
		b.responses = b.responses[len(b.responses)-maxResponses:]
	}
}

func (b *BrowserAdapter) active(ctx context.Context) *rod.Page {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.page.Context(ctx)
}

func (b *BrowserAdapter) Navigate(ctx context.Context, url string) error {
	page := b.active(ctx)
	if b.timeout > 0 {
		page = page.Timeout(b.timeout)
	}
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (b *BrowserAdapter) GoBack(ctx context.Context) error {
	if err := b.active(ctx).NavigateBack(); err != nil {
		return fmt.Errorf("go back: %w", err)
	}
	return nil
}

func (b *BrowserAdapter) Resolve(ctx context.Context, command string) (output.ElementHandle, error) {
	plan, err := locator.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrConfiguration, err)
	}
	el, err := rodwrapper.Resolve(b.active(ctx), plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return &element{el: el}, nil
}

func (b *BrowserAdapter) ElementByIndex(ctx context.Context, index int) (output.ElementHandle, error) {
	el, err := rodwrapper.ElementAt(b.active(ctx), index)
	if err != nil {
		return nil, err
	}
	return &element{el: el}, nil
}

func (b *BrowserAdapter) Snapshot(ctx context.Context, opts entity.SnapshotOptions) (*entity.PageSnapshot, error) {
	page := b.active(ctx)
	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}
	elements, err := rodwrapper.ExtractUI(page, opts)
	if err != nil {
		return nil, err
	}
	return &entity.PageSnapshot{
		URL:      info.URL,
		Title:    info.Title,
		Axtree:   rodwrapper.FormatAxtree(elements),
		Elements: elements,
	}, nil
}

func (b *BrowserAdapter) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	imgBytes, err := b.active(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if img.Bounds().Dx() > screenshotMax {
		img = imaging.Resize(img, screenshotMax, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

func (b *BrowserAdapter) HTML(ctx context.Context) (string, error) {
	raw, err := b.active(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}
	cleaned, err := rodwrapper.CleanHTML(raw, nil)
	if err != nil {
		return raw, nil
	}
	return cleaned, nil
}

func (b *BrowserAdapter) Evaluate(ctx context.Context, script string) (any, error) {
	res, err := b.active(ctx).Eval(script)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return res.Value.Val(), nil
}

func (b *BrowserAdapter) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	page := b.active(ctx)
	if timeout > 0 {
		page = page.Timeout(timeout)
	}
	err := page.WaitLoad()
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil
	}
	return err
}

func (b *BrowserAdapter) HandleNewTabs(ctx context.Context, timeout time.Duration) (bool, time.Duration) {
	start := time.Now()
	for {
		if page := b.newPage(); page != nil {
			b.attach(page)
			_ = page.Context(ctx).Timeout(b.timeout).WaitLoad()
			return true, time.Since(start)
		}
		if time.Since(start) >= timeout {
			return false, time.Since(start)
		}
		select {
		case <-ctx.Done():
			return false, time.Since(start)
		case <-time.After(newTabPoll):
		}
	}
}

// newPage returns the newest tab not seen before, if any.
func (b *BrowserAdapter) newPage() *rod.Page {
	pages, err := b.browser.Pages()
	if err != nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var found *rod.Page
	for _, p := range pages {
		if !b.known[p.TargetID] {
			found = p
		}
	}
	return found
}

func (b *BrowserAdapter) SetDownloadDirectory(ctx context.Context, dir string) error {
	err := proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath:  dir,
		EventsEnabled: true,
	}.Call(b.browser.Context(ctx))
	if err != nil {
		return fmt.Errorf("set download directory: %w", err)
	}
	return nil
}

func (b *BrowserAdapter) NetworkResponses(ctx context.Context) ([]entity.NetworkResponse, error) {
	b.respMu.Lock()
	recorded := append([]response(nil), b.responses...)
	b.respMu.Unlock()

	page := b.active(ctx)
	out := make([]entity.NetworkResponse, 0, len(recorded))
	for _, r := range recorded {
		resp := r.NetworkResponse
		if textual(resp.MIMEType) {
			body, err := proto.NetworkGetResponseBody{RequestID: r.requestID}.Call(page)
			if err == nil {
				resp.Body = body.Body
				if body.Base64Encoded {
					if data, err := base64.StdEncoding.DecodeString(body.Body); err == nil {
						resp.Body = string(data)
					}
				}
			}
		}
		out = append(out, resp)
	}
	return out, nil
}

func textual(mime string) bool {
	for _, s := range []string{"json", "text", "xml", "javascript"} {
		if strings.Contains(mime, s) {
			return true
		}
	}
	return false
}

func (b *BrowserAdapter) CurrentURL() string {
	info, err := b.active(context.Background()).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (b *BrowserAdapter) Title() string {
	info, err := b.active(context.Background()).Info()
	if err != nil {
		return ""
	}
	return info.Title
}

func (b *BrowserAdapter) Close() {
	b.mu.Lock()
	if b.stopEvents != nil {
		b.stopEvents()
	}
	b.mu.Unlock()
	b.browser.Close()
}

type element struct {
	el *rod.Element
}

func (e *element) Click(ctx context.Context, double bool) error {
	clicks := 1
	if double {
		clicks = 2
	}
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, clicks)
}

func (e *element) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	if text == "" {
		_, err := el.Eval(clearJS)
		return err
	}
	return el.Input(text)
}

const clearJS = `() => {
	this.value = '';
	this.dispatchEvent(new Event('input', {bubbles: true}));
}`

// Type sends the text one character at a time, for inputs that react to key events.
func (e *element) Type(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focus: %w", err)
	}
	page := el.Page()
	for _, r := range text {
		if err := page.InsertText(string(r)); err != nil {
			return fmt.Errorf("type: %w", err)
		}
	}
	return nil
}

const selectJS = `(values) => {
	let n = 0;
	for (const o of this.options) {
		o.selected = values.includes(o.value) || values.includes(o.label);
		if (o.selected) n++;
	}
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return n;
}`

func (e *element) SelectOptions(ctx context.Context, values []string) error {
	res, err := e.el.Context(ctx).Eval(selectJS, values)
	if err != nil {
		return fmt.Errorf("select options: %w", err)
	}
	if res.Value.Int() == 0 {
		return fmt.Errorf("no option matches %q", values)
	}
	return nil
}

const optionsJS = `() => Array.from(this.options || []).map(o => ({value: o.value, label: (o.label || o.textContent || '').trim()}))`

func (e *element) Options(ctx context.Context) ([]entity.SelectOption, error) {
	res, err := e.el.Context(ctx).Eval(optionsJS)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var opts []entity.SelectOption
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return opts, nil
}

func (e *element) SetFiles(ctx context.Context, paths []string) error {
	return e.el.Context(ctx).SetFiles(paths)
}
