package feed

import (
	"context"
	"time"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/format"
	"github.com/pders01/synfeed/internal/identity"
	"github.com/pders01/synfeed/internal/interaction"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/visibility"
)

// Item is one row of the rendered feed: a StoryStripItem, a ComposerItem or
// a PostItem.
type Item interface {
	item()
}

// StoryEntry is one avatar in the story strip.
type StoryEntry struct {
	Story  model.Story          `json:"story"`
	Author model.UserProjection `json:"author"`
	Label  string               `json:"label"`
}

type StoryStripItem struct {
	Stories []StoryEntry `json:"stories"`
}

// ComposerItem is the "what's on your mind" row with the viewer's avatar.
type ComposerItem struct {
	Viewer    model.UserProjection `json:"viewer"`
	HasViewer bool                 `json:"has_viewer"`
}

type PostItem struct {
	Post         model.Post           `json:"post"`
	Author       model.UserProjection `json:"author"`
	Visible      bool                 `json:"visible"`
	Age          string               `json:"age"`
	LikeCount    int64                `json:"like_count"`
	Likes        string               `json:"likes"`
	CommentCount int64                `json:"comment_count"`
	Comments     string               `json:"comments"`
	Liked        bool                 `json:"liked"`
	Favorited    bool                 `json:"favorited"`
	// CountsErr is set when the counts could not be read; the counts are
	// then zero and the row should keep whatever it showed before.
	CountsErr error `json:"-"`
}

func (StoryStripItem) item() {}
func (ComposerItem) item()   {}
func (PostItem) item()       {}

// Resolver resolves author projections.
type Resolver interface {
	Resolve(ctx context.Context, id string) model.UserProjection
}

// CountBinder reads the live counts of a post row.
type CountBinder interface {
	BindCounts(ctx context.Context, postID, viewerID string) (interaction.Counts, error)
}

// Presenter turns loader state into render items.
type Presenter struct {
	users  Resolver
	counts CountBinder
	viewer identity.Provider
	now    func() time.Time
	loc    *time.Location
}

type PresenterOption func(*Presenter)

// WithClock sets the time source and the zone for absolute dates.
func WithClock(now func() time.Time, loc *time.Location) PresenterOption {
	return func(p *Presenter) {
		p.now = now
		p.loc = loc
	}
}

func NewPresenter(users Resolver, counts CountBinder, viewer identity.Provider, opts ...PresenterOption) *Presenter {
	p := &Presenter{
		users:  users,
		counts: counts,
		viewer: viewer,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Items builds the full item list: the story strip, the composer and one
// item per post the viewer may see.
func (p *Presenter) Items(ctx context.Context, state State) []Item {
	items := make([]Item, 0, len(state.Posts)+2)
	items = append(items, p.StoryStrip(ctx, state.Stories), p.Composer(ctx))
	for _, post := range state.Posts {
		it := p.Present(ctx, post)
		if !it.Visible {
			continue
		}
		items = append(items, it)
	}
	return items
}

func (p *Presenter) StoryStrip(ctx context.Context, stories []model.Story) StoryStripItem {
	strip := StoryStripItem{Stories: make([]StoryEntry, 0, len(stories))}
	for _, s := range stories {
		author := p.users.Resolve(ctx, s.AuthorID)
		label := model.StoryLabel(author)
		if s.Placeholder {
			label = "Your story"
		}
		strip.Stories = append(strip.Stories, StoryEntry{Story: s, Author: author, Label: label})
	}
	return strip
}

func (p *Presenter) Composer(ctx context.Context) ComposerItem {
	id, ok := p.viewer.CurrentUserID()
	if !ok {
		return ComposerItem{Viewer: model.FallbackProjection("")}
	}
	return ComposerItem{Viewer: p.users.Resolve(ctx, id), HasViewer: true}
}

// Present builds the item for one post. Visibility is decided before any
// lookups, so hidden posts cost nothing.
func (p *Presenter) Present(ctx context.Context, post model.Post) PostItem {
	viewerID, _ := p.viewer.CurrentUserID()
	it := PostItem{Post: post, Visible: visibility.Visible(post, viewerID)}
	if !it.Visible {
		return it
	}

	it.Author = p.users.Resolve(ctx, post.AuthorID)
	if post.HasCreatedAt {
		it.Age = format.RelativeTimeIn(p.loc, p.now().UnixMilli(), post.CreatedAt)
	}

	c, err := p.counts.BindCounts(ctx, post.ID, viewerID)
	if err != nil {
		debuglog.Warnf("feed: counts for %s: %v", post.ID, err)
		it.CountsErr = err
	}
	it.LikeCount = c.Likes
	it.Likes = format.ShortCount(c.Likes)
	it.CommentCount = c.Comments
	it.Comments = format.ShortCount(c.Comments)
	it.Liked = c.Liked
	it.Favorited = c.Favorited
	return it
}
