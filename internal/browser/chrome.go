package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/Veraticus/spice-harvest/internal/common"
)

//go:embed recorder.js
var recorderScript string

const (
	bindingName  = "harvestEvent"
	eventBuffer  = 256
	disableHooks = `window.__harvestRecorder && (window.__harvestRecorder.enabled = false)`
)

// ChromeConfig says how to reach Chrome.
type ChromeConfig struct {
	RemoteURL string // DevTools websocket/http endpoint of a running Chrome; empty launches one
	TargetID  string // attach to an existing tab instead of opening a new one
	Headless  bool
}

// ChromeDriver implements Driver over the Chrome DevTools protocol.
type ChromeDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger
	events      chan Event
	scriptID    page.ScriptIdentifier
	mu          sync.Mutex
	listening   bool
}

// NewChromeDriver connects to (or launches) Chrome and opens a tab.
// ctx bounds the whole lifetime of the driver, not a single call.
func NewChromeDriver(ctx context.Context, cfg ChromeConfig, logger *slog.Logger) (*ChromeDriver, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", cfg.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	var tabOpts []chromedp.ContextOption
	if cfg.TargetID != "" {
		tabOpts = append(tabOpts, chromedp.WithTargetID(target.ID(cfg.TargetID)))
	}
	tabCtx, cancel := chromedp.NewContext(allocCtx, tabOpts...)

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}

	d := &ChromeDriver{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      common.ComponentLogger(logger, "chrome"),
	}
	chromedp.ListenTarget(tabCtx, d.onTargetEvent)
	return d, nil
}

// run executes actions on the tab, abandoning them when the caller's ctx ends.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

// WaitReady waits until the document body is present.
func (d *ChromeDriver) WaitReady(ctx context.Context) error {
	return d.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

// Exists reports whether selector matches anything right now, without waiting.
func (d *ChromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Click clicks the first element matching selector once it is visible.
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// SetValue replaces a field's content by typing value into it.
func (d *ChromeDriver) SetValue(ctx context.Context, selector, value string) error {
	return d.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// SelectOption sets a <select> value and fires the change event pages listen for.
func (d *ChromeDriver) SelectOption(ctx context.Context, selector, value string) error {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return fmt.Errorf("failed to quote selector: %w", err)
	}
	dispatch := fmt.Sprintf(`document.querySelector(%s).dispatchEvent(new Event("change", {bubbles: true}))`, quoted)

	return d.run(ctx,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(dispatch, nil),
	)
}

// URL returns the tab's current location.
func (d *ChromeDriver) URL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

// OuterHTML serializes the current DOM.
func (d *ChromeDriver) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Screenshot captures the viewport as PNG.
func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// StartEvents installs the interaction hooks on the current and future documents.
func (d *ChromeDriver) StartEvents(ctx context.Context) (<-chan Event, error) {
	d.mu.Lock()
	if d.listening {
		d.mu.Unlock()
		return nil, errors.New("already streaming events")
	}
	d.events = make(chan Event, eventBuffer)
	d.listening = true
	events := d.events
	d.mu.Unlock()

	err := d.run(ctx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			id, err := page.AddScriptToEvaluateOnNewDocument(recorderScript).Do(ctx)
			if err != nil {
				return err
			}
			d.mu.Lock()
			d.scriptID = id
			d.mu.Unlock()
			return nil
		}),
		chromedp.Evaluate(recorderScript, nil),
	)
	if err != nil {
		d.closeEvents()
		return nil, fmt.Errorf("failed to install recorder: %w", err)
	}
	return events, nil
}

// StopEvents removes the hooks and closes the event channel.
func (d *ChromeDriver) StopEvents(ctx context.Context) error {
	scriptID, wasListening := d.closeEvents()
	if !wasListening {
		return nil
	}

	return d.run(ctx,
		chromedp.Evaluate(disableHooks, nil),
		page.RemoveScriptToEvaluateOnNewDocument(scriptID),
		runtime.RemoveBinding(bindingName),
	)
}

// closeEvents flips the listening state without touching the browser, so it is safe
// to call while the event loop is busy.
func (d *ChromeDriver) closeEvents() (page.ScriptIdentifier, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.listening {
		return "", false
	}
	d.listening = false
	close(d.events)
	return d.scriptID, true
}

// Close stops event streaming and closes the tab.
func (d *ChromeDriver) Close() error {
	d.closeEvents()
	d.cancel()
	d.allocCancel()
	return nil
}

func (d *ChromeDriver) onTargetEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != bindingName {
			return
		}
		var evt Event
		if err := json.Unmarshal([]byte(e.Payload), &evt); err != nil {
			d.logger.Warn("dropping malformed recorder payload", "error", err)
			return
		}
		d.emit(evt)
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		d.emit(Event{Type: EventNavigate, URL: e.Frame.URL})
	}
}

// emit never blocks: it runs on the protocol event loop.
func (d *ChromeDriver) emit(evt Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.listening {
		return
	}
	evt.At = time.Now()
	select {
	case d.events <- evt:
	default:
		d.logger.Warn("event buffer full, dropping event", "type", evt.Type)
	}
}
