package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	ps "github.com/mitchellh/go-ps"
)

var (
	ErrTimedOut      = errors.New("timed out waiting for the saml assertion")
	ErrBrowserLaunch = errors.New("unable to launch browser")
)

// BrowserConf configures the interactive SAML login browser.
type BrowserConf struct {
	datadir  string
	headless bool
	timeout  time.Duration
}

func NewBrowserConf(datadir string) *BrowserConf {
	return &BrowserConf{
		datadir: datadir,
		timeout: 120 * time.Second,
	}
}

// WithHeadless runs the browser without a window. Only useful for automated
// providers; an interactive login needs the window.
func (c *BrowserConf) WithHeadless() *BrowserConf {
	c.headless = true
	return c
}

// WithTimeout caps how long the login may take, in seconds.
func (c *BrowserConf) WithTimeout(seconds int) *BrowserConf {
	c.timeout = time.Duration(seconds) * time.Second
	return c
}

// Browser captures the SAMLResponse an identity provider posts to the ACS
// endpoint after a user completes the login it drives. One browser instance
// is launched per Assertion call and torn down with it.
type Browser struct {
	conf *BrowserConf
}

func NewBrowser(conf *BrowserConf) *Browser {
	return &Browser{conf: conf}
}

func (b *Browser) Assertion(ctx context.Context, providerURL, acsURL string) (string, error) {
	l := launcher.New().
		Headless(b.conf.headless).
		Devtools(false).
		Leakless(true).
		UserDataDir(b.conf.datadir)

	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("%s, %w", err, ErrBrowserLaunch)
	}
	browser := rod.New().ControlURL(controlURL).NoDefaultDevice()
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("%s, %w", err, ErrBrowserLaunch)
	}
	defer browser.MustClose()

	captured := make(chan string, 1)
	router := browser.HijackRequests()
	defer router.MustStop()
	err = router.Add(acsURL, "", func(h *rod.Hijack) {
		body := h.Request.Body()
		_ = h.LoadResponse(http.DefaultClient, true)
		if vals, err := url.ParseQuery(body); err == nil {
			if assertion := vals.Get("SAMLResponse"); assertion != "" {
				select {
				case captured <- assertion:
				default:
				}
			}
		}
	})
	if err != nil {
		return "", fmt.Errorf("%s, %w", err, ErrBrowserLaunch)
	}
	go router.Run()

	if _, err := browser.Page(proto.TargetCreateTarget{URL: providerURL}); err != nil {
		return "", fmt.Errorf("%s, %w", err, ErrBrowserLaunch)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(b.conf.timeout):
		return "", fmt.Errorf("no assertion posted to %s, %w", acsURL, ErrTimedOut)
	case assertion := <-captured:
		return assertion, nil
	}
}

// ClearCache removes the browser user-data directory and reaps any orphaned
// browser processes a previous improperly-closed login left behind.
func (b *Browser) ClearCache() error {
	errs := []error{}
	if err := os.RemoveAll(b.conf.datadir); err != nil {
		errs = append(errs, err)
	}
	if err := reapOrphanedBrowsers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func reapOrphanedBrowsers() error {
	procs, err := ps.Processes()
	if err != nil {
		return err
	}
	for _, p := range procs {
		if !strings.Contains(p.Executable(), "Chromium") {
			continue
		}
		if proc, _ := os.FindProcess(p.Pid()); proc != nil {
			fmt.Fprintf(os.Stderr, "reaping orphaned browser process: %d\n", p.Pid())
			_ = proc.Kill()
		}
	}
	return nil
}
