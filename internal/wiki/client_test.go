package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAScholar/STConverterWatchingDog/internal/types"
)

// zhMagicWords is the redirect magic word as zh.wikipedia reports it
const zhMagicWords = `{"query":{"magicwords":[{"name":"redirect","aliases":["#重定向","#重新導向","#重新导向","#REDIRECT"],"case-sensitive":false}]}}`

// setupMockWiki starts a fake api.php. handle receives the merged query and
// form values and returns the JSON body to send. Siteinfo requests are
// answered with zhMagicWords.
func setupMockWiki(t *testing.T, handle func(t *testing.T, r *http.Request, params url.Values) string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("format"); got != "json" {
			t.Errorf("expected format=json, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "test-bot/0.1") {
			t.Errorf("unexpected User-Agent %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("meta") == "siteinfo" {
			assert.Equal(t, "magicwords", r.Form.Get("siprop"))
			fmt.Fprint(w, zhMagicWords)
			return
		}
		fmt.Fprint(w, handle(t, r, r.Form))
	}))
	t.Cleanup(server.Close)

	c, err := New(Options{
		APIURL:    server.URL + "/w/api.php",
		UserAgent: "test-bot/0.1",
		Username:  "Bot@test",
		Password:  "secret",
	})
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Options{APIURL: "not a url"})
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	c := setupMockWiki(t, func(t *testing.T, r *http.Request, p url.Values) string {
		switch {
		case p.Get("meta") == "tokens" && p.Get("type") == "login":
			return `{"query":{"tokens":{"logintoken":"LT+\\"}}}`
		case p.Get("action") == "login":
			assert.Equal(t, "Bot@test", p.Get("lgname"))
			assert.Equal(t, "secret", p.Get("lgpassword"))
			assert.Equal(t, `LT+\`, p.Get("lgtoken"))
			return `{"login":{"result":"Success","lgusername":"Bot"}}`
		}
		t.Errorf("unexpected request %v", p)
		return `{}`
	})

	require.NoError(t, c.Login(context.Background()))
	require.NotNil(t, c.redirect, "login loads the redirect keywords")
	_, ok := c.redirect.currentTarget("#重新導向 [[檔案]]")
	assert.True(t, ok)
}

func TestLoginFailure(t *testing.T) {
	c := setupMockWiki(t, func(t *testing.T, r *http.Request, p url.Values) string {
		if p.Get("action") == "login" {
			return `{"login":{"result":"Failed","reason":"Incorrect password"}}`
		}
		return `{"query":{"tokens":{"logintoken":"LT"}}}`
	})

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bot@test")
}

func TestRecentChangesFollowsContinue(t *testing.T) {
	calls := 0
	c := setupMockWiki(t, func(t *testing.T, r *http.Request, p url.Values) string {
		calls++
		assert.Equal(t, "recentchanges", p.Get("list"))
		assert.Equal(t, "0", p.Get("rcnamespace"))
		assert.Equal(t, "mw-changed-redirect-target", p.Get("rctag"))
		assert.Equal(t, "edit|new", p.Get("rctype"))
		if p.Get("rccontinue") == "" {
			return `{"continue":{"rccontinue":"20240101|9","continue":"-||"},
				"query":{"recentchanges":[{"title":"文件","revid":30},{"title":"汉字","revid":20}]}}`
		}
		assert.Equal(t, "20240101|9", p.Get("rccontinue"))
		return `{"query":{"recentchanges":[{"title":"文件","revid":10}]}}`
	})

	changes, err := c.RecentChanges(context.Background(), 0, "mw-changed-redirect-target", 100)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []types.Change{
		{Title: "文件", RevisionID: 30},
		{Title: "汉字", RevisionID: 20},
		{Title: "文件", RevisionID: 10},
	}, changes)
}

func TestRecentChangesStopsAtLimit(t *testing.T) {
	c := setupMockWiki(t, func(t *testing.T, r *http.Request, p url.Values) string {
		assert.Equal(t, "2", p.Get("rclimit"))
		assert.Equal(t, "edit|new", p.Get("rctype"))
		return `{"continue":{"rccontinue":"x","continue":"-||"},
			"query":{"recentchanges":[{"title":"A","revid":2},{"title":"B","revid":1}]}}`
	})

	changes, err := c.RecentChanges(context.Background(), 0, "t", 2)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestAPIErrorIsReturned(t *testing.T) {
	c := setupMockWiki(t, func(t *testing.T, r *http.Request, p url.Values) string {
		return `{"error":{"code":"maxlag","info":"Waiting for a database server"}}`
	})

	_, err := c.Exists(context.Background(), "文件")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "maxlag", apiErr.Code)
}

func TestExistsAndIsRedirect(t *testing.T) {
	c := setupMockWiki(t, func(t *testing.T, r *http.Request, p url.Values) string {
		switch p.Get("titles") {
		case "文件":
			return `{"query":{"pages":[{"title":"文件","pageid":1,"lastrevid":5}]}}`
		case "檔案":
			return `{"query":{"pages":[{"title":"檔案","pageid":2,"redirect":true}]}}`
		default:
			return `{"query":{"pages":[{"title":"` + p.Get("titles") + `","missing":true}]}}`
		}
	})
	ctx := context.Background()

	ok, err := c.Exists(ctx, "文件")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, "不存在")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsRedirect(ctx, "檔案")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsRedirect(ctx, "文件")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsRedirect(ctx, "不存在")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedirectTarget(t *testing.T) {
	tests := []struct {
		name     string
		response string
		sections string
		want     types.PageRef
		wantErr  error
	}{
		{
			name:     "plain redirect",
			response: `{"query":{"redirects":[{"from":"文件","to":"档案"}],"pages":[{"title":"档案"}]}}`,
			want:     types.PageRef{Title: "档案"},
		},
		{
			name:     "first hop of a chain",
			response: `{"query":{"redirects":[{"from":"文件","to":"档案"},{"from":"档案","to":"檔案"}],"pages":[{"title":"檔案"}]}}`,
			want:     types.PageRef{Title: "档案"},
		},
		{
			name:     "not a redirect",
			response: `{"query":{"pages":[{"title":"文件"}]}}`,
			wantErr:  ErrNotRedirect,
		},
		{
			name:     "missing page",
			response: `{"query":{"pages":[{"title":"文件","missing":true}]}}`,
			wantErr:  ErrMissingPage,
		},
		{
			name:     "circular",
			response: `{"query":{"redirects":[{"from":"文件","to":"档案"},{"from":"档案","to":"文件"}],"pages":[{"title":"文件","redirect":true}]}}`,
			wantErr:  ErrCircularRedirect,
		},
		{
			name:     "interwiki",
			response: `{"query":{"redirects":[{"from":"文件","to":"File","tointerwiki":"en"}],"interwiki":[{"title":"en:File","iw":"en"}]}}`,
			wantErr:  ErrInterwikiRedirect,
		},
		{
			name:     "section exists",
			response: `{"query":{"redirects":[{"from":"文件","to":"档案","tofragment":"历史"}],"pages":[{"title":"档案"}]}}`,
			sections: `{"parse":{"title":"档案","sections":[{"line":"历史","anchor":"历史"}]}}`,
			want:     types.PageRef{Title: "档案", Fragment: "历史"},
		},
		{
			name:     "section missing",
			response: `{"query":{"redirects":[{"from":"文件","to":"档案","tofragment":"未来"}],"pages":[{"title":"档案"}]}}`,
			sections: `{"parse":{"title":"档案","sections":[{"line":"历史","anchor":"历史"}]}}`,
			wantErr:  ErrSection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupMockWiki(t, func(t *testing.T, r *http.Request, p url.Values) string {
				if p.Get("action") == "parse" {
					return tt.sections
				}
				assert.Equal(t, "1", p.Get("redirects"))
				return tt.response
			})

			got, err := c.RedirectTarget(context.Background(), "文件")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Title, got.Title)
			assert.Equal(t, tt.want.Fragment, got.Fragment)
			assert.Equal(t, c.Site(), got.Site)
		})
	}
}

func TestSetRedirectTarget(t *testing.T) {
	var edited url.Values
	c := setupMockWiki(t, func(t *testing.T, r *http.Request, p url.Values) string {
		switch {
		case p.Get("action") == "edit":
			edited = p
			return `{"edit":{"result":"Success","newrevid":101}}`
		case p.Get("meta") == "tokens":
			return `{"query":{"tokens":{"csrftoken":"CT+\\"}}}`
		}
		switch p.Get("titles") {
		case "檔案":
			return `{"query":{"pages":[{"title":"檔案","redirect":true,"revisions":[{"timestamp":"2024-01-01T00:00:00Z",
				"slots":{"main":{"content":"#重定向 [[旧目标|x]]\n\n{{Redirect category shell}}"}}}]}]}}`
		case "檔案館":
			return `{"query":{"pages":[{"title":"檔案館","redirect":true,"revisions":[{"timestamp":"2024-02-01T00:00:00Z",
				"slots":{"main":{"content":"#重新導向 [[旧目标]]"}}}]}]}}`
		case "已指向":
			return `{"query":{"pages":[{"title":"已指向","redirect":true,"revisions":[{"timestamp":"2024-01-01T00:00:00Z",
				"slots":{"main":{"content":"#REDIRECT [[档案]]"}}}]}]}}`
		case "普通页面":
			return `{"query":{"pages":[{"title":"普通页面","revisions":[{"timestamp":"2024-01-01T00:00:00Z",
				"slots":{"main":{"content":"正文"}}}]}]}}`
		}
		return `{"query":{"pages":[{"title":"` + p.Get("titles") + `","missing":true}]}}`
	})
	ctx := context.Background()
	target := types.PageRef{Title: "档案"}

	edit, err := c.SetRedirectTarget(ctx, "檔案", target, SetOptions{Summary: "sync"})
	require.NoError(t, err)
	assert.True(t, edit.Changed)
	assert.Equal(t, "旧目标", edit.Previous.Title)
	require.NotNil(t, edited)
	assert.Equal(t, "#重定向 [[档案]]\n\n{{Redirect category shell}}", edited.Get("text"))
	assert.Equal(t, "1", edited.Get("nocreate"))
	assert.Equal(t, `CT+\`, edited.Get("token"))
	assert.Equal(t, "2024-01-01T00:00:00Z", edited.Get("basetimestamp"))
	assert.Equal(t, "sync", edited.Get("summary"))

	edited = nil
	edit, err = c.SetRedirectTarget(ctx, "檔案館", target, SetOptions{Summary: "sync"})
	require.NoError(t, err)
	assert.True(t, edit.Changed)
	assert.Equal(t, "旧目标", edit.Previous.Title)
	require.NotNil(t, edited)
	assert.Equal(t, "#重新導向 [[档案]]", edited.Get("text"))

	edited = nil
	edit, err = c.SetRedirectTarget(ctx, "已指向", target, SetOptions{})
	require.NoError(t, err)
	assert.False(t, edit.Changed)
	assert.Nil(t, edited, "no edit when the target already matches")

	_, err = c.SetRedirectTarget(ctx, "普通页面", target, SetOptions{})
	assert.ErrorIs(t, err, ErrNotRedirect)

	_, err = c.SetRedirectTarget(ctx, "不存在", target, SetOptions{})
	assert.ErrorIs(t, err, ErrMissingPage)
	assert.Nil(t, edited)
}

func TestRetarget(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target types.PageRef
		want   string
		ok     bool
	}{
		{
			name:   "english keyword",
			text:   "#REDIRECT [[Old]]",
			target: types.PageRef{Title: "New"},
			want:   "#REDIRECT [[New]]",
			ok:     true,
		},
		{
			name:   "lower case keeps suffix",
			text:   "#redirect:[[Old#Sec]]\n[[Category:X]]",
			target: types.PageRef{Title: "New", Fragment: "Part"},
			want:   "#redirect:[[New#Part]]\n[[Category:X]]",
			ok:     true,
		},
		{
			name:   "not a redirect",
			text:   "Some [[Old]] text",
			target: types.PageRef{Title: "New"},
			want:   "Some [[Old]] text",
		},
		{
			name:   "simplified keyword",
			text:   "#重定向 [[旧]]",
			target: types.PageRef{Title: "档案"},
			want:   "#重定向 [[档案]]",
			ok:     true,
		},
		{
			name:   "traditional long keyword",
			text:   "#重新導向 [[旧]]\n{{簡繁重定向}}",
			target: types.PageRef{Title: "档案"},
			want:   "#重新導向 [[档案]]\n{{簡繁重定向}}",
			ok:     true,
		},
		{
			name:   "simplified long keyword",
			text:   "# 重新导向 [[旧]]",
			target: types.PageRef{Title: "档案"},
			want:   "# 重新导向 [[档案]]",
			ok:     true,
		},
		{
			name:   "simplified long keyword with colon",
			text:   "#重新导向:[[旧|别名]]",
			target: types.PageRef{Title: "档案"},
			want:   "#重新导向:[[档案]]",
			ok:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := defaultRedirect.retarget(tt.text, tt.target)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedirectKeywordsFromSiteinfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "siteinfo", r.Form.Get("meta"))
		fmt.Fprint(w, `{"query":{"magicwords":[{"name":"redirect","aliases":["#WEITERLEITUNG","#REDIRECT"]}]}}`)
	}))
	t.Cleanup(server.Close)

	c, err := New(Options{APIURL: server.URL, UserAgent: "test-bot/0.1"})
	require.NoError(t, err)
	require.NoError(t, c.Login(context.Background()))

	syntax := c.redirectSyntax(context.Background())
	got, ok := syntax.currentTarget("#WEITERLEITUNG [[Ziel#Abschnitt]]")
	require.True(t, ok)
	assert.Equal(t, types.PageRef{Title: "Ziel", Fragment: "Abschnitt"}, got)

	_, ok = syntax.currentTarget("#重新导向 [[目标]]")
	assert.True(t, ok, "built-in keywords stay accepted")
}

func TestRedirectKeywordsFallBackWhenSiteinfoFails(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"error":{"code":"readapidenied","info":"You need read permission"}}`)
	}))
	t.Cleanup(server.Close)

	c, err := New(Options{APIURL: server.URL, UserAgent: "test-bot/0.1"})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Same(t, defaultRedirect, c.redirectSyntax(ctx))
	assert.Same(t, defaultRedirect, c.redirectSyntax(ctx))
	assert.Equal(t, 2, calls, "a failed lookup is retried")
	assert.Nil(t, c.redirect)
}
