package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dslwatch/rci"
)

// CookieSource reads the tab's cookies for routerURL on every call, so the
// command channel always presents the current login.
func CookieSource(doc *Document, routerURL string) rci.CookieSource {
	return func(ctx context.Context) ([]*http.Cookie, error) {
		page, err := doc.Page()
		if err != nil {
			return nil, err
		}
		cookies, err := page.Context(ctx).Cookies([]string{routerURL})
		if err != nil {
			return nil, fmt.Errorf("browser: cookies: %w", err)
		}
		return HTTPCookies(cookies), nil
	}
}

// HTTPCookies converts CDP cookies to net/http ones. Domain is dropped: the
// jar scopes them to the router host it is fed for.
func HTTPCookies(in []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil || c.Name == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(0, int64(float64(c.Expires)*float64(time.Second)))
		}
		switch c.SameSite {
		case proto.NetworkCookieSameSiteStrict:
			hc.SameSite = http.SameSiteStrictMode
		case proto.NetworkCookieSameSiteLax:
			hc.SameSite = http.SameSiteLaxMode
		case proto.NetworkCookieSameSiteNone:
			hc.SameSite = http.SameSiteNoneMode
		}
		out = append(out, hc)
	}
	return out
}
