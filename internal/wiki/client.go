// Package wiki wraps a go-mwclient session with the typed page and feed
// operations the bot needs: login, recent changes, page info and redirect
// edits.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	mwclient "cgt.name/pkg/go-mwclient"
	"cgt.name/pkg/go-mwclient/params"
	"golang.org/x/time/rate"
)

var (
	ErrMissingPage       = errors.New("page does not exist")
	ErrNotRedirect       = errors.New("page is not a redirect")
	ErrCircularRedirect  = errors.New("circular redirect")
	ErrInterwikiRedirect = errors.New("redirect points to another wiki")
	ErrSection           = errors.New("redirect target section does not exist")
)

// APIError is an error object returned in the body of an API response
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// Options configures a Client
type Options struct {
	APIURL       string
	UserAgent    string
	Username     string
	Password     string
	Timeout      time.Duration
	EditInterval time.Duration
	MaxLag       int
}

// Client talks to one wiki through go-mwclient, which owns the session,
// tokens and maxlag retries. Edits are spaced out with a rate limiter.
type Client struct {
	opts      Options
	site      string
	mw        *mwclient.Client
	editLimit *rate.Limiter

	mu       sync.Mutex
	redirect *redirectSyntax
}

// New creates a Client. It does not contact the wiki.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", opts.APIURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "STConverterWatchingDog/1.0"
	}

	mw, err := mwclient.New(opts.APIURL, opts.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("create mediawiki client: %w", err)
	}
	mw.SetHTTPTimeout(opts.Timeout)
	if opts.MaxLag > 0 {
		mw.Maxlag.On = true
		mw.Maxlag.Timeout = strconv.Itoa(opts.MaxLag)
	}

	limit := rate.Inf
	if opts.EditInterval > 0 {
		limit = rate.Every(opts.EditInterval)
	}

	return &Client{
		opts:      opts,
		site:      u.Host,
		mw:        mw,
		editLimit: rate.NewLimiter(limit, 1),
	}, nil
}

// Site returns the host name of the wiki
func (c *Client) Site() string {
	return c.site
}

// Login signs in with a bot password and loads the wiki's redirect
// keywords. Without a configured username the client stays anonymous.
func (c *Client) Login(ctx context.Context) error {
	if c.opts.Username != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.mw.Login(c.opts.Username, c.opts.Password); err != nil {
			return fmt.Errorf("login as %s: %w", c.opts.Username, err)
		}
	}
	c.redirectSyntax(ctx)
	return nil
}

// get runs a read request and decodes the raw response into out. go-mwclient
// hands back the body untouched, so API errors are picked out here.
func (c *Client) get(ctx context.Context, p params.Values, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p["format"] = "json"
	p["formatversion"] = "2"
	body, err := c.mw.GetRaw(p)
	if err != nil {
		return err
	}
	return decode(body, out)
}

func decode(body []byte, out any) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
