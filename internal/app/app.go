// Package app assembles the feed engine from configuration. The CLI, the
// terminal view and the HTTP server all share one App.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pders01/synfeed/internal/config"
	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/feed"
	"github.com/pders01/synfeed/internal/identity"
	"github.com/pders01/synfeed/internal/interaction"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/notify"
	"github.com/pders01/synfeed/internal/remote"
	"github.com/pders01/synfeed/internal/search"
	"github.com/pders01/synfeed/internal/seed"
	"github.com/pders01/synfeed/internal/storage"
	"github.com/pders01/synfeed/internal/syndicate"
	"github.com/pders01/synfeed/internal/usercache"
)

// ErrUnknownPost is returned for post ids that are not in the loaded feed.
var ErrUnknownPost = errors.New("app: unknown post")

type App struct {
	Config    *config.Config
	DB        *storage.Store
	Store     *remote.Store
	Viewer    identity.Provider
	Users     *usercache.Cache
	Engine    *interaction.Engine
	Loader    *feed.Loader
	Presenter *feed.Presenter
	Composer  *feed.Composer
	Index     *search.Index
	Importer  *syndicate.Importer
	Seeder    *seed.Seeder

	closers []func() error
}

type options struct {
	viewer    string
	viewerSet bool
	backend   remote.Backend
	notifier  notify.Notifier
}

type Option func(*options)

// AsUser overrides the configured viewer. An empty id signs the viewer out.
func AsUser(id string) Option {
	return func(o *options) {
		o.viewer = id
		o.viewerSet = true
	}
}

// WithBackend replaces the bbolt database. Imports are unavailable then.
func WithBackend(b remote.Backend) Option {
	return func(o *options) { o.backend = b }
}

func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}

	viewer, err := resolveViewer(cfg.Identity, o.viewer, o.viewerSet)
	if err != nil {
		return nil, err
	}
	a.Viewer = viewer

	backend := o.backend
	if backend == nil {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		db, err := storage.NewStore(cfg.Database.Path, cfg.Database.Timeout)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		backend = db
	}
	a.Store = remote.NewStore(backend)

	cacheOpts := []usercache.Option{usercache.WithCollection(cfg.Paths.Users)}
	if cfg.Cache.Backend == config.CacheRedis {
		client := usercache.RedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		a.closers = append(a.closers, client.Close)
		cacheOpts = append(cacheOpts, usercache.WithBackend(usercache.NewRedis(client, cfg.Cache.KeyPrefix)))
	}
	a.Users = usercache.New(a.Store, cacheOpts...)

	notifier := o.notifier
	if notifier == nil {
		notifier = a.dialNotifier()
	}
	a.Engine = interaction.New(a.Store, a.Users,
		interaction.WithPaths(interaction.Paths{
			Likes:     cfg.Paths.Likes,
			Comments:  cfg.Paths.Comments,
			Favorites: cfg.Paths.Favorites,
		}),
		interaction.WithNotifier(notifier),
		interaction.WithHardened(cfg.Interaction.Hardened),
	)

	a.Loader = feed.NewLoader(a.Store, a.Viewer,
		feed.WithPaths(feed.Paths{Posts: cfg.Paths.Posts, Stories: cfg.Paths.Stories}),
		feed.WithStoryLimit(cfg.Feed.StoryLimit),
	)
	a.Presenter = feed.NewPresenter(a.Users, a.Engine, a.Viewer)
	a.Composer = feed.NewComposer(a.Store, a.Viewer, a.Loader, cfg.Paths.Posts, cfg.Feed.ComposeMaxLength)

	idx, err := search.Open(cfg.Database.SearchIndex, a.Users)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Index = idx
	a.closers = append(a.closers, idx.Close)
	a.Loader.AddListener(idx)

	if a.DB != nil {
		a.Importer = syndicate.New(a.Store, a.DB,
			syndicate.WithHTTPClient(&http.Client{Timeout: cfg.Import.HTTPTimeout}),
			syndicate.WithLocalHosts(cfg.Import.AllowLocal),
			syndicate.WithPostsPath(cfg.Paths.Posts),
			syndicate.WithMaxLength(cfg.Feed.ComposeMaxLength),
		)
	}
	a.Seeder = seed.New(a.Store, seed.Collections{
		Posts:     cfg.Paths.Posts,
		Stories:   cfg.Paths.Stories,
		Users:     cfg.Paths.Users,
		Likes:     cfg.Paths.Likes,
		Comments:  cfg.Paths.Comments,
		Favorites: cfg.Paths.Favorites,
	})
	return a, nil
}

func resolveViewer(cfg config.IdentityConfig, override string, overridden bool) (identity.Provider, error) {
	switch {
	case overridden:
		return identity.Static(override), nil
	case cfg.Token != "":
		p, err := identity.NewJWT(cfg.Token, cfg.Secret)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return identity.Static(cfg.UserID), nil
	}
}

// dialNotifier connects to the broker when configured. An unreachable broker
// degrades to log notifications.
func (a *App) dialNotifier() notify.Notifier {
	if a.Config.Notify.Backend != config.NotifyAMQP {
		return notify.Log{}
	}
	ch, conn, err := notify.Dial(a.Config.Notify.AMQPURL)
	if err != nil {
		debuglog.Warnf("app: amqp unavailable, logging notifications: %v", err)
		return notify.Log{}
	}
	a.closers = append(a.closers, ch.Close, conn.Close)
	return notify.NewAMQP(ch, a.Config.Notify.Exchange, a.Config.Notify.RoutingKey)
}

// ViewerID returns the signed-in viewer or feed.ErrNoViewer.
func (a *App) ViewerID() (string, error) {
	id, ok := a.Viewer.CurrentUserID()
	if !ok {
		return "", feed.ErrNoViewer
	}
	return id, nil
}

// FindPost looks id up in the loaded feed, loading it first if needed.
func (a *App) FindPost(ctx context.Context, id string) (model.Post, error) {
	if p, ok := a.Loader.Post(id); ok {
		return p, nil
	}
	if err := a.Loader.Load(ctx); err != nil {
		return model.Post{}, err
	}
	if p, ok := a.Loader.Post(id); ok {
		return p, nil
	}
	return model.Post{}, fmt.Errorf("%w: %s", ErrUnknownPost, id)
}

// ToggleLike likes or unlikes a post as the viewer.
func (a *App) ToggleLike(ctx context.Context, postID string) (interaction.Toggle, error) {
	return a.toggle(ctx, postID, a.Engine.ToggleLike)
}

func (a *App) ToggleFavorite(ctx context.Context, postID string) (interaction.Toggle, error) {
	return a.toggle(ctx, postID, a.Engine.ToggleFavorite)
}

func (a *App) toggle(ctx context.Context, postID string, fn func(context.Context, model.Post, string) (interaction.Toggle, error)) (interaction.Toggle, error) {
	uid, err := a.ViewerID()
	if err != nil {
		return interaction.Toggle{}, err
	}
	post, err := a.FindPost(ctx, postID)
	if err != nil {
		return interaction.Toggle{}, err
	}
	return fn(ctx, post, uid)
}

// Refresh reloads posts and stories. A stories failure is logged; the posts
// error is returned.
func (a *App) Refresh(ctx context.Context) error {
	err := a.Loader.Refresh(ctx)
	if serr := a.Loader.LoadStories(ctx); serr != nil {
		debuglog.Warnf("app: stories: %v", serr)
	}
	return err
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
