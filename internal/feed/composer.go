package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/identity"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/remote"
)

var (
	ErrEmptyPost   = errors.New("feed: post text is empty")
	ErrPostTooLong = errors.New("feed: post text is too long")
)

// DefaultMaxPostLength is the longest accepted post text, in characters.
const DefaultMaxPostLength = 1500

// Composer publishes text posts as the current viewer and reloads the feed.
type Composer struct {
	store  *remote.Store
	viewer identity.Provider
	loader *Loader
	posts  string
	maxLen int
	now    func() time.Time
	newID  func() string
}

func NewComposer(store *remote.Store, viewer identity.Provider, loader *Loader, postsPath string, maxLen int) *Composer {
	if maxLen <= 0 {
		maxLen = DefaultMaxPostLength
	}
	if postsPath == "" {
		postsPath = DefaultPaths().Posts
	}
	return &Composer{
		store:  store,
		viewer: viewer,
		loader: loader,
		posts:  postsPath,
		maxLen: maxLen,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Validate trims text and checks it against the length limits.
func (c *Composer) Validate(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyPost
	}
	if n := utf8.RuneCountInString(text); n > c.maxLen {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrPostTooLong, n, c.maxLen)
	}
	return text, nil
}

// Publish writes a public text post and reloads the feed. A failed reload is
// logged; the post has been written either way.
func (c *Composer) Publish(ctx context.Context, text string) (model.Post, error) {
	ctx, span := tracer.Start(ctx, "feed.Publish")
	defer span.End()

	uid, ok := c.viewer.CurrentUserID()
	if !ok {
		return model.Post{}, ErrNoViewer
	}
	text, err := c.Validate(text)
	if err != nil {
		return model.Post{}, err
	}

	id := c.newID()
	created := c.now().UnixMilli()
	rec := map[string]any{
		model.KeyID:                id,
		model.KeyAuthor:            uid,
		model.KeyText:              text,
		model.KeyType:              model.PostTypeText,
		model.KeyHideViewsCount:    false,
		model.KeyRegion:            "none",
		model.KeyHideLikeCount:     false,
		model.KeyHideCommentsCount: false,
		model.KeyDisableComments:   false,
		model.KeyDisableFavorite:   false,
		model.KeyVisibility:        model.VisibilityPublic,
		model.KeyPublishDate:       strconv.FormatInt(created, 10),
	}
	if err := c.store.Ref(c.posts).Child(id).Set(ctx, rec); err != nil {
		return model.Post{}, fmt.Errorf("publishing post: %w", err)
	}
	post, _ := model.DecodePost(id, rec)

	if c.loader != nil {
		if err := c.loader.Load(ctx); err != nil {
			debuglog.Warnf("feed: reload after publish: %v", err)
		}
	}
	return post, nil
}
