package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/synfeed/internal/app"
	"github.com/pders01/synfeed/internal/config"
	"github.com/pders01/synfeed/internal/identity"
)

const fixture = `
[[users]]
id = "ann"
nickname = "Ann"
account_type = "moderator"

[[users]]
id = "tester"
username = "tester"

[[posts]]
id = "p1"
author = "ann"
text = "notes on compost"
published = 2024-01-02T00:00:00Z

[[posts]]
id = "p2"
author = "tester"
text = "my own note"
visibility = "private"
published = 2024-01-01T00:00:00Z

[[posts]]
id = "p3"
author = "ann"
text = "hidden from everyone else"
visibility = "private"
published = 2024-01-03T00:00:00Z

[[stories]]
id = "s1"
author = "ann"
published = 2024-01-02T00:00:00Z

[[likes]]
post = "p1"
users = ["ann"]
`

const rss = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Garden Notes</title>
<item><guid>a</guid><title>Raised beds</title><link>https://example.com/a</link></item>
<item><guid>b</guid><title>Winter mulch</title><link>https://example.com/b</link></item>
</channel></rss>`

type env struct {
	dir     string
	cfgPath string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := fmt.Sprintf(`
[database]
path = %q
search_index = ""

[identity]
user_id = "tester"
secret = "s3cret"

[import]
allow_local = true
`, filepath.Join(dir, "synfeed.db"))
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return &env{dir: dir, cfgPath: cfgPath}
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, "synfeed %s", strings.Join(args, " "))
	return out
}

func (e *env) seed(t *testing.T) {
	t.Helper()
	path := filepath.Join(e.dir, "fixture.toml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	out := e.mustRun(t, "seed", path)
	assert.Contains(t, out, "Seeded 2 users, 3 posts, 1 stories, 1 likes")
}

func TestVersionCommand(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "version")
	assert.Contains(t, out, "synfeed dev")
	assert.Contains(t, out, "github.com/pders01/synfeed")
}

func TestConfigGenerateCommand(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "generated", "config.toml")

	out := e.mustRun(t, "config", "generate", "--path", path)
	assert.Contains(t, out, "Generated default configuration at: "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Feed.ShimmerItems)
}

func TestFeedCommand(t *testing.T) {
	e := newEnv(t)

	assert.Contains(t, e.mustRun(t, "feed"), "No posts yet")

	e.seed(t)
	out := e.mustRun(t, "feed")
	assert.Contains(t, out, "p1  Ann [moderator]")
	assert.Contains(t, out, "notes on compost")
	assert.Contains(t, out, "♡ 1")
	assert.Contains(t, out, "my own note")
	assert.NotContains(t, out, "hidden from everyone else")

	out = e.mustRun(t, "feed", "--as", "ann")
	assert.Contains(t, out, "hidden from everyone else")
	assert.Contains(t, out, "♥ 1")
	assert.NotContains(t, out, "my own note")
}

func TestDBFlagOverridesConfig(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(e.dir, "other.db")

	path := filepath.Join(e.dir, "fixture.toml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	e.mustRun(t, "--db", other, "seed", path)

	assert.Contains(t, e.mustRun(t, "feed"), "No posts yet")
	assert.Contains(t, e.mustRun(t, "--db", other, "feed"), "notes on compost")
}

func TestStoriesCommand(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	out := e.mustRun(t, "stories")
	assert.Contains(t, out, "+ Your story")
	assert.Contains(t, out, "s1  Ann")
}

func TestToggleCommands(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	assert.Contains(t, e.mustRun(t, "like", "p1"), "Liked p1 (2 likes)")
	assert.Contains(t, e.mustRun(t, "like", "p1"), "Unliked p1 (1 like)")
	assert.Contains(t, e.mustRun(t, "favorite", "p1"), "Saved p1 to favorites")
	assert.Contains(t, e.mustRun(t, "favorite", "p1"), "Removed p1 from favorites")

	_, err := e.run(t, "like", "nope")
	assert.ErrorIs(t, err, app.ErrUnknownPost)

	_, err = e.run(t, "like")
	assert.Error(t, err)
}

func TestPostAndSearchCommands(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	out := e.mustRun(t, "post", "turning", "the", "compost", "today")
	assert.True(t, strings.HasPrefix(out, "Posted "), out)

	out = e.mustRun(t, "search", "compost")
	assert.Contains(t, out, "turning the compost today")
	assert.Contains(t, out, "p1  Ann")

	assert.Contains(t, e.mustRun(t, "search", "zucchini"), "No matches")

	_, err := e.run(t, "post", "   ")
	assert.Error(t, err)
}

func TestImportCommand(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, rss)
	}))
	defer srv.Close()

	e := newEnv(t)
	e.seed(t)

	assert.Contains(t, e.mustRun(t, "import", srv.URL), "Imported 2 posts from Garden Notes")
	assert.Contains(t, e.mustRun(t, "import", srv.URL), "not modified")
	assert.Contains(t, e.mustRun(t, "import", "--force", srv.URL), "Imported 2 posts")
	assert.Equal(t, int32(3), hits.Load())

	out := e.mustRun(t, "feed")
	assert.Contains(t, out, "Raised beds")
	assert.Contains(t, out, "Winter mulch")

	out = e.mustRun(t, "stats")
	assert.Contains(t, out, "Posts:        5")
	assert.Contains(t, out, "Sources:      1")
	assert.Contains(t, out, srv.URL)
}

func TestTokenCommand(t *testing.T) {
	e := newEnv(t)

	tok := strings.TrimSpace(e.mustRun(t, "token", "ann", "--username", "ann"))
	p, err := identity.NewJWT(tok, "s3cret")
	require.NoError(t, err)
	id, ok := p.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "ann", id)
}

func TestServeCommand(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	pr, pw := io.Pipe()
	root := newRootCmd()
	root.SetOut(pw)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", e.cfgPath, "serve", "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	line, err := bufio.NewReader(pr).ReadString('\n')
	require.NoError(t, err)
	base := strings.TrimSpace(strings.TrimPrefix(line, "Listening on "))

	resp, err := http.Get(base + "/api/feed")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "notes on compost")

	cancel()
	require.NoError(t, <-done)
}
