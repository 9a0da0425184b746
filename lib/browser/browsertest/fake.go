// Package browsertest provides an in-memory browser.Browser that serves
// canned HTML documents and evaluates selectors with goquery.
package browsertest

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"repeatbot/lib/authsnap"
	"repeatbot/lib/browser"

	"github.com/PuerkitoBio/goquery"
)

const blank = "<html><head></head><body></body></html>"

// ClickHandler runs after a successful click on a page served from the URL
// it was registered for. It may swap the page's document with SetHTML.
type ClickHandler func(p *Page, loc browser.Locator) error

type Click struct {
	URL     string
	Locator browser.Locator
}

// Browser is a fake browser.Browser. Register documents with Serve before
// navigating to them, unknown URLs render an empty body.
type Browser struct {
	*Page

	mu       sync.Mutex
	pages    map[string]string
	handlers map[string]ClickHandler
	navErrs  map[string]error
	panics   map[string]any

	cookies []authsnap.Cookie
	storage map[browser.StorageKind]map[string]string
	clicks  []Click

	// RejectCookie makes SetCookie fail for the cookies it returns true for.
	RejectCookie func(authsnap.Cookie) bool

	openTabs   int
	tabsOpened int
	closed     bool
}

func New() *Browser {
	b := &Browser{
		pages:    map[string]string{},
		handlers: map[string]ClickHandler{},
		navErrs:  map[string]error{},
		panics:   map[string]any{},
		storage: map[browser.StorageKind]map[string]string{
			browser.LocalStorage:   {},
			browser.SessionStorage: {},
		},
	}
	b.Page = &Page{b: b}
	b.Page.setHTML(blank)
	return b
}

func (b *Browser) Serve(url, html string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[url] = html
}

func (b *Browser) OnClick(url string, handler ClickHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[url] = handler
}

// FailNavigation makes navigating to url return err.
func (b *Browser) FailNavigation(url string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navErrs[url] = err
}

// PanicOnNavigation makes navigating to url panic with value.
func (b *Browser) PanicOnNavigation(url string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panics[url] = value
}

func (b *Browser) CookieJar() []authsnap.Cookie {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]authsnap.Cookie(nil), b.cookies...)
}

func (b *Browser) Clicks() []Click {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Click(nil), b.clicks...)
}

// OpenTabs is the number of tabs opened and not yet closed.
func (b *Browser) OpenTabs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openTabs
}

// TabsOpened is the number of tabs ever opened.
func (b *Browser) TabsOpened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tabsOpened
}

func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) NewTab(ctx context.Context, url string) (browser.Tab, error) {
	b.mu.Lock()
	b.openTabs++
	b.tabsOpened++
	b.mu.Unlock()

	tab := &Tab{Page: &Page{b: b}}
	tab.setHTML(blank)
	defer func() {
		if r := recover(); r != nil {
			tab.Close()
			panic(r)
		}
	}()
	if err := tab.Navigate(ctx, url); err != nil {
		tab.Close()
		return nil, err
	}
	return tab, nil
}

func (b *Browser) Pid() int {
	return 0
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type Tab struct {
	*Page
	once sync.Once
}

func (t *Tab) Close() error {
	t.once.Do(func() {
		t.b.mu.Lock()
		t.b.openTabs--
		t.b.mu.Unlock()
	})
	return nil
}

type Page struct {
	b   *Browser
	url string
	doc *goquery.Document
}

func (p *Page) setHTML(html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	p.doc = doc
}

// SetHTML replaces the current document, like a client side re-render.
func (p *Page) SetHTML(html string) {
	p.setHTML(html)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.b.mu.Lock()
	html, ok := p.b.pages[url]
	navErr := p.b.navErrs[url]
	panicValue, panics := p.b.panics[url]
	p.b.mu.Unlock()

	if panics {
		panic(panicValue)
	}
	if navErr != nil {
		return navErr
	}
	if !ok {
		html = blank
	}
	p.url = url
	p.setHTML(html)
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	return p.Navigate(ctx, p.url)
}

func (p *Page) URL(ctx context.Context) (string, error) {
	return p.url, nil
}

func (p *Page) FindAll(ctx context.Context, selector string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	var err error
	p.doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var h string
		h, err = goquery.OuterHtml(sel)
		out = append(out, h)
		return err == nil
	})
	return out, err
}

func (p *Page) WaitPresent(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.doc.Find(selector).Length() > 0, nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel := p.doc.Find(loc.Selector).Eq(loc.Index)
	if loc.Inner != "" {
		sel = sel.Find(loc.Inner).First()
	}
	if sel.Length() == 0 {
		return fmt.Errorf("%w: %s[%d] %s", browser.ErrNotFound, loc.Selector, loc.Index, loc.Inner)
	}

	p.b.mu.Lock()
	p.b.clicks = append(p.b.clicks, Click{URL: p.url, Locator: loc})
	handler := p.b.handlers[p.url]
	p.b.mu.Unlock()

	if handler != nil {
		return handler(p, loc)
	}
	return nil
}

func (p *Page) SetCookie(ctx context.Context, cookie authsnap.Cookie) error {
	if p.b.RejectCookie != nil && p.b.RejectCookie(cookie) {
		return fmt.Errorf("cookie %s rejected", cookie.Name)
	}
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.b.cookies = append(p.b.cookies, cookie)
	return nil
}

func (p *Page) Cookies(ctx context.Context, urls ...string) ([]authsnap.Cookie, error) {
	return p.b.CookieJar(), nil
}

func (p *Page) SetStorage(ctx context.Context, kind browser.StorageKind, items map[string]string) (int, error) {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	maps.Copy(p.b.storage[kind], items)
	return len(items), nil
}

func (p *Page) Storage(ctx context.Context, kind browser.StorageKind) (map[string]string, error) {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return maps.Clone(p.b.storage[kind]), nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}
