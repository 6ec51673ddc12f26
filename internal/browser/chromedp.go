package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// DefaultLoginURL is the Telegram Web K client. The K client keeps the whole
// login flow on one page, which makes the selectors below considerably less
// flaky than the A client.
const DefaultLoginURL = "https://web.telegram.org/k/"

// Selectors for the Telegram Web K login flow. These track the current markup
// and will need updating when Telegram ships a redesign.
const (
	selPhoneLoginButton = `.input-wrapper .btn-secondary, button.btn-primary.rp`
	selPhoneInput       = `.input-field-phone .input-field-input[contenteditable], input[type="tel"]`
	selNextButton       = `button.btn-primary`
	selCodeInput        = `.input-wrapper input[type="tel"], input[inputmode="numeric"]`
	selPasswordInput    = `input[type="password"]`
	selCodeError        = `.input-field.error input, .error-message`
	selChatList         = `.chatlist-container, .chat-list`
)

// ChromeDriver launches chromedp-backed handles against Telegram Web.
type ChromeDriver struct {
	loginURL string
	logger   *slog.Logger

	// stepTimeout bounds each individual DOM interaction.
	stepTimeout time.Duration
}

// ChromeOption configures a ChromeDriver.
type ChromeOption func(*ChromeDriver)

// WithLoginURL overrides the login surface URL.
func WithLoginURL(url string) ChromeOption {
	return func(d *ChromeDriver) {
		d.loginURL = url
	}
}

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) ChromeOption {
	return func(d *ChromeDriver) {
		d.logger = logger
	}
}

// WithStepTimeout bounds each DOM interaction.
func WithStepTimeout(d time.Duration) ChromeOption {
	return func(drv *ChromeDriver) {
		drv.stepTimeout = d
	}
}

// NewChromeDriver creates a driver for Telegram Web.
func NewChromeDriver(opts ...ChromeOption) *ChromeDriver {
	d := &ChromeDriver{
		loginURL:    DefaultLoginURL,
		logger:      slog.Default(),
		stepTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Launch starts a Chrome instance and returns a handle bound to it.
func (d *ChromeDriver) Launch(ctx context.Context, headless bool) (Handle, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(1280, 900),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	h := &chromeHandle{
		driver:    d,
		ctx:       tabCtx,
		cancelTab: cancelTab,
		cancelAll: cancelAlloc,
		logger:    d.logger,
	}

	// Spin the browser up now so launch failures surface here, not on the
	// first navigation.
	if err := h.run(ctx); err != nil {
		h.Close()
		return nil, fmt.Errorf("%w: launch chrome: %v", ErrDriver, err)
	}

	d.logger.Debug("chrome launched", "headless", headless)
	return h, nil
}

// chromeHandle is a live Chrome tab parked somewhere in the login flow.
type chromeHandle struct {
	driver    *ChromeDriver
	ctx       context.Context
	cancelTab context.CancelFunc
	cancelAll context.CancelFunc
	logger    *slog.Logger
	closeOnce sync.Once
}

func (h *chromeHandle) run(ctx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(h.ctx, h.driver.stepTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(stepCtx, actions...)
	}()
	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (h *chromeHandle) BeginLogin(ctx context.Context, phone string) error {
	h.logger.Debug("navigating to login surface", "url", h.driver.loginURL)

	err := h.run(ctx,
		chromedp.Navigate(h.driver.loginURL),
		chromedp.WaitReady("body"),
		// The K client lands on the QR view; switch to phone login.
		chromedp.Click(selPhoneLoginButton, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.WaitVisible(selPhoneInput, chromedp.ByQuery),
		chromedp.Click(selPhoneInput, chromedp.ByQuery),
		chromedp.SendKeys(selPhoneInput, phone, chromedp.ByQuery),
		chromedp.Click(selNextButton, chromedp.ByQuery, chromedp.NodeVisible),
		// Parked once the code input is rendered; the code itself arrives
		// out-of-band and is typed in a later call.
		chromedp.WaitVisible(selCodeInput, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: begin login for %s: %v", ErrDriver, redactPhone(phone), err)
	}
	return nil
}

func (h *chromeHandle) SubmitCode(ctx context.Context, code string) (CodeResult, error) {
	err := h.run(ctx,
		chromedp.Click(selCodeInput, chromedp.ByQuery),
		chromedp.SendKeys(selCodeInput, code, chromedp.ByQuery),
	)
	if err != nil {
		return CodeRejected, fmt.Errorf("%w: submit code: %v", ErrDriver, err)
	}

	// The K client auto-submits once the last digit is typed. Poll for
	// whichever outcome renders first: password prompt, chat list, or an
	// error-flagged code field.
	outcome, err := h.awaitOne(ctx, map[string]CodeResult{
		selPasswordInput: CodeNeedsSecondary,
		selChatList:      CodeAccepted,
		selCodeError:     CodeRejected,
	})
	if err != nil {
		return CodeRejected, fmt.Errorf("%w: await code outcome: %v", ErrDriver, err)
	}
	return outcome, nil
}

func (h *chromeHandle) SubmitSecondary(ctx context.Context, password string) (SecondaryResult, error) {
	err := h.run(ctx,
		chromedp.WaitVisible(selPasswordInput, chromedp.ByQuery),
		chromedp.SendKeys(selPasswordInput, password+"\n", chromedp.ByQuery),
	)
	if err != nil {
		return SecondaryRejected, fmt.Errorf("%w: submit password: %v", ErrDriver, err)
	}

	outcome, err := h.awaitOne(ctx, map[string]CodeResult{
		selChatList:  CodeAccepted,
		selCodeError: CodeRejected,
	})
	if err != nil {
		return SecondaryRejected, fmt.Errorf("%w: await password outcome: %v", ErrDriver, err)
	}
	if outcome == CodeAccepted {
		return SecondaryAccepted, nil
	}
	return SecondaryRejected, nil
}

// awaitOne polls until one of the given selectors is visible and returns its
// mapped result. chromedp's WaitVisible blocks on a single selector only, so
// racing alternatives needs an explicit poll.
func (h *chromeHandle) awaitOne(ctx context.Context, outcomes map[string]CodeResult) (CodeResult, error) {
	deadline := time.Now().Add(h.driver.stepTimeout)
	for time.Now().Before(deadline) {
		for sel, result := range outcomes {
			var visible bool
			script := fmt.Sprintf(
				`(() => { const el = document.querySelector(%q); return el !== null && el.offsetParent !== null; })()`,
				sel)
			if err := h.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
				return CodeRejected, err
			}
			if visible {
				return result, nil
			}
		}
		select {
		case <-ctx.Done():
			return CodeRejected, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return CodeRejected, fmt.Errorf("no login outcome within %s", h.driver.stepTimeout)
}

// exportedState is the serialized shape of an authenticated context.
type exportedState struct {
	Cookies      []*network.Cookie `json:"cookies"`
	LocalStorage map[string]string `json:"local_storage"`
	ExportedAt   time.Time         `json:"exported_at"`
}

func (h *chromeHandle) ExportState(ctx context.Context) ([]byte, error) {
	var cookies []*network.Cookie
	var localStorage map[string]string

	err := h.run(ctx,
		chromedp.ActionFunc(func(tabCtx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(tabCtx)
			return err
		}),
		chromedp.Evaluate(
			`(() => { const out = {}; for (let i = 0; i < localStorage.length; i++) { const k = localStorage.key(i); out[k] = localStorage.getItem(k); } return out; })()`,
			&localStorage,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: export state: %v", ErrDriver, err)
	}

	blob, err := json.Marshal(exportedState{
		Cookies:      cookies,
		LocalStorage: localStorage,
		ExportedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal state: %v", ErrDriver, err)
	}
	return blob, nil
}

func (h *chromeHandle) Close() error {
	h.closeOnce.Do(func() {
		h.cancelTab()
		h.cancelAll()
		h.logger.Debug("chrome handle closed")
	})
	return nil
}

func redactPhone(phone string) string {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) <= 4 {
		return "+****"
	}
	return "+" + digits[:2] + strings.Repeat("*", len(digits)-4) + digits[len(digits)-2:]
}
