package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// TabConfig says which tab is the router console.
type TabConfig struct {
	// RouterURL is the console origin, e.g. http://192.168.1.1.
	RouterURL string
	// Stealth opens a new tab through go-rod/stealth.
	Stealth bool
	// NavigateTimeout bounds the initial load of a new tab. Default: 30s.
	NavigateTimeout time.Duration
	Logger          *slog.Logger
}

// AttachTab returns the first open page on the router origin. When there is
// none it opens one on RouterURL.
func AttachTab(ctx context.Context, b *rod.Browser, cfg TabConfig) (*rod.Page, error) {
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if sameOrigin(info.URL, cfg.RouterURL) {
			cfg.Logger.Info("browser: attached to console tab", "url", info.URL)
			return p, nil
		}
	}
	return openTab(ctx, b, cfg)
}

func openTab(ctx context.Context, b *rod.Browser, cfg TabConfig) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(cfg.RouterURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", cfg.RouterURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		cfg.Logger.Warn("browser: wait load timeout", "url", cfg.RouterURL, "error", err)
	}
	cfg.Logger.Info("browser: opened console tab", "url", cfg.RouterURL, "stealth", cfg.Stealth)
	return page, nil
}

// sameOrigin reports whether pageURL is served by the router at routerURL.
func sameOrigin(pageURL, routerURL string) bool {
	p, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	r, err := url.Parse(routerURL)
	if err != nil {
		return false
	}
	return p.Host != "" && strings.EqualFold(p.Scheme, r.Scheme) && strings.EqualFold(p.Host, r.Host)
}
