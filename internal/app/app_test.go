package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/synfeed/internal/config"
	"github.com/pders01/synfeed/internal/feed"
	"github.com/pders01/synfeed/internal/identity"
	"github.com/pders01/synfeed/internal/remote"
	"github.com/pders01/synfeed/internal/seed"
)

const fixture = `
[[users]]
id = "ann"
nickname = "Ann"

[[posts]]
id = "p1"
author = "ann"
text = "first post about gardens"
published = 2024-01-01T00:00:00Z
`

func newApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	cfg := config.TestConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "synfeed.db")
	a, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	f, err := seed.Parse(strings.NewReader(fixture))
	require.NoError(t, err)
	_, err = a.Seeder.Apply(context.Background(), f)
	require.NoError(t, err)
	return a
}

func TestNew_WiresComponents(t *testing.T) {
	a := newApp(t)
	require.NotNil(t, a.DB)
	require.NotNil(t, a.Importer)

	id, err := a.ViewerID()
	require.NoError(t, err)
	assert.Equal(t, "tester", id)

	ctx := context.Background()
	require.NoError(t, a.Refresh(ctx))

	items := a.Presenter.Items(ctx, a.Loader.State())
	require.Len(t, items, 3)
	post := items[2].(feed.PostItem)
	assert.Equal(t, "Ann", post.Author.DisplayName())

	res, err := a.Index.Search("gardens", id, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "p1", res[0].PostID)
}

func TestToggle(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	tg, err := a.ToggleLike(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, tg.Active)
	assert.Equal(t, int64(1), tg.Count)

	tg, err = a.ToggleFavorite(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, tg.Active)

	_, err = a.ToggleLike(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownPost)
}

func TestViewerSelection(t *testing.T) {
	a := newApp(t, AsUser(""))
	_, err := a.ToggleLike(context.Background(), "p1")
	assert.ErrorIs(t, err, feed.ErrNoViewer)
	_, err = a.ViewerID()
	assert.ErrorIs(t, err, feed.ErrNoViewer)

	configured := newApp(t)
	id, err := configured.ViewerID()
	require.NoError(t, err)
	assert.Equal(t, "tester", id)

	secret := "s3cret"
	token, err := identity.Sign("jwt-user", "jwt", secret, time.Hour)
	require.NoError(t, err)
	p, err := resolveViewer(config.IdentityConfig{UserID: "plain", Token: token, Secret: secret}, "", false)
	require.NoError(t, err)
	id, ok := p.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "jwt-user", id)

	p, err = resolveViewer(config.IdentityConfig{Token: token, Secret: secret}, "override", true)
	require.NoError(t, err)
	id, _ = p.CurrentUserID()
	assert.Equal(t, "override", id)

	p, err = resolveViewer(config.IdentityConfig{UserID: "plain", Token: token, Secret: secret}, "", true)
	require.NoError(t, err)
	_, ok = p.CurrentUserID()
	assert.False(t, ok)

	_, err = resolveViewer(config.IdentityConfig{Token: token, Secret: "wrong"}, "", false)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestWithBackend(t *testing.T) {
	cfg := config.TestConfig()
	a, err := New(cfg, WithBackend(remote.NewMemory()))
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Importer)
	assert.NoError(t, a.Loader.Load(context.Background()))
	assert.True(t, a.Loader.State().Shimmer)
}
