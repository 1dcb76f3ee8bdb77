// Package seed loads TOML fixture files into the store so a fresh database
// has users, posts, stories and interactions to show.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/remote"
	"github.com/pders01/synfeed/internal/storage"
)

var ErrInvalidFixture = errors.New("seed: invalid fixture")

type User struct {
	ID          string `toml:"id"`
	Nickname    string `toml:"nickname"`
	Username    string `toml:"username"`
	Avatar      string `toml:"avatar"`
	Gender      string `toml:"gender"`
	AccountType string `toml:"account_type"`
	Verified    bool   `toml:"verified"`
	Banned      bool   `toml:"banned"`
}

type Post struct {
	ID              string    `toml:"id"`
	Author          string    `toml:"author"`
	Text            string    `toml:"text"`
	Image           string    `toml:"image"`
	Visibility      string    `toml:"visibility"`
	Published       time.Time `toml:"published"`
	HideLikeCount   bool      `toml:"hide_like_count"`
	DisableComments bool      `toml:"disable_comments"`
}

type Story struct {
	ID        string    `toml:"id"`
	Author    string    `toml:"author"`
	Published time.Time `toml:"published"`
}

// Likes lists the users who liked one post.
type Likes struct {
	Post  string   `toml:"post"`
	Users []string `toml:"users"`
}

type Comment struct {
	ID        string    `toml:"id"`
	Post      string    `toml:"post"`
	Author    string    `toml:"author"`
	Text      string    `toml:"text"`
	Published time.Time `toml:"published"`
}

// Favorites lists the posts one user saved.
type Favorites struct {
	User  string   `toml:"user"`
	Posts []string `toml:"posts"`
}

type Fixture struct {
	Users     []User      `toml:"users"`
	Posts     []Post      `toml:"posts"`
	Stories   []Story     `toml:"stories"`
	Likes     []Likes     `toml:"likes"`
	Comments  []Comment   `toml:"comments"`
	Favorites []Favorites `toml:"favorites"`
}

// Collections names where each kind of record is written.
type Collections struct {
	Posts     string
	Stories   string
	Users     string
	Likes     string
	Comments  string
	Favorites string
}

func DefaultCollections() Collections {
	return Collections{
		Posts:     "posts",
		Stories:   "stories",
		Users:     "users",
		Likes:     "posts-likes",
		Comments:  "posts-comments",
		Favorites: "favorite-posts",
	}
}

// Summary counts the records written by Apply.
type Summary struct {
	Users     int
	Posts     int
	Stories   int
	Likes     int
	Comments  int
	Favorites int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d users, %d posts, %d stories, %d likes, %d comments, %d favorites",
		s.Users, s.Posts, s.Stories, s.Likes, s.Comments, s.Favorites)
}

// Parse decodes a fixture. Unknown keys are rejected so typos surface early.
func Parse(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

func (f *Fixture) validate() error {
	for i, u := range f.Users {
		if u.ID == "" {
			return fmt.Errorf("%w: users[%d] has no id", ErrInvalidFixture, i)
		}
	}
	for i, p := range f.Posts {
		if p.Author == "" {
			return fmt.Errorf("%w: posts[%d] has no author", ErrInvalidFixture, i)
		}
		if p.Visibility != "" && p.Visibility != model.VisibilityPublic && p.Visibility != model.VisibilityPrivate {
			return fmt.Errorf("%w: posts[%d] visibility %q", ErrInvalidFixture, i, p.Visibility)
		}
	}
	for i, s := range f.Stories {
		if s.Author == "" {
			return fmt.Errorf("%w: stories[%d] has no author", ErrInvalidFixture, i)
		}
	}
	for i, l := range f.Likes {
		if l.Post == "" {
			return fmt.Errorf("%w: likes[%d] has no post", ErrInvalidFixture, i)
		}
	}
	for i, c := range f.Comments {
		if c.Post == "" || c.Author == "" {
			return fmt.Errorf("%w: comments[%d] needs post and author", ErrInvalidFixture, i)
		}
	}
	for i, fv := range f.Favorites {
		if fv.User == "" {
			return fmt.Errorf("%w: favorites[%d] has no user", ErrInvalidFixture, i)
		}
	}
	return nil
}

// Seeder writes fixtures through the remote accessor.
type Seeder struct {
	store *remote.Store
	cols  Collections
	now   func() time.Time
	newID func() string
}

func New(store *remote.Store, cols Collections) *Seeder {
	return &Seeder{store: store, cols: cols, now: time.Now, newID: uuid.NewString}
}

// Apply writes every record in f. Records without an id get a fresh uuid and
// records without a timestamp are stamped with the current time.
func (s *Seeder) Apply(ctx context.Context, f *Fixture) (Summary, error) {
	var sum Summary

	for _, u := range f.Users {
		rec := map[string]any{
			model.UserKeyNickname:    u.Nickname,
			model.UserKeyUsername:    u.Username,
			model.UserKeyAvatar:      u.Avatar,
			model.UserKeyGender:      u.Gender,
			model.UserKeyAccountType: u.AccountType,
			model.UserKeyVerified:    u.Verified,
			model.UserKeyBanned:      u.Banned,
		}
		if err := s.set(ctx, s.store.Ref(s.cols.Users).Child(u.ID), rec); err != nil {
			return sum, err
		}
		sum.Users++
	}

	for _, p := range f.Posts {
		id := s.idOr(p.ID)
		vis := p.Visibility
		if vis == "" {
			vis = model.VisibilityPublic
		}
		postType := model.PostTypeText
		if p.Image != "" {
			postType = model.PostTypeImage
		}
		rec := map[string]any{
			model.KeyID:                id,
			model.KeyAuthor:            p.Author,
			model.KeyText:              p.Text,
			model.KeyType:              postType,
			model.KeyVisibility:        vis,
			model.KeyRegion:            "none",
			model.KeyPublishDate:       s.stamp(p.Published),
			model.KeyHideViewsCount:    false,
			model.KeyHideLikeCount:     p.HideLikeCount,
			model.KeyHideCommentsCount: false,
			model.KeyDisableComments:   p.DisableComments,
			model.KeyDisableFavorite:   false,
		}
		if p.Image != "" {
			rec[model.KeyImage] = p.Image
		}
		if err := s.set(ctx, s.store.Ref(s.cols.Posts).Child(id), rec); err != nil {
			return sum, err
		}
		sum.Posts++
	}

	for _, st := range f.Stories {
		id := s.idOr(st.ID)
		rec := map[string]any{
			model.KeyID:          id,
			model.KeyAuthor:      st.Author,
			model.KeyPublishDate: s.stamp(st.Published),
		}
		if err := s.set(ctx, s.store.Ref(s.cols.Stories).Child(id), rec); err != nil {
			return sum, err
		}
		sum.Stories++
	}

	for _, l := range f.Likes {
		for _, uid := range l.Users {
			if err := s.set(ctx, s.store.Ref(s.cols.Likes).Child(l.Post).Child(uid), uid); err != nil {
				return sum, err
			}
			sum.Likes++
		}
	}

	for _, c := range f.Comments {
		id := s.idOr(c.ID)
		rec := map[string]any{
			model.KeyID:          id,
			model.KeyAuthor:      c.Author,
			"comment":            c.Text,
			model.KeyPublishDate: s.stamp(c.Published),
		}
		if err := s.set(ctx, s.store.Ref(s.cols.Comments).Child(c.Post).Child(id), rec); err != nil {
			return sum, err
		}
		sum.Comments++
	}

	for _, fv := range f.Favorites {
		for _, pid := range fv.Posts {
			if err := s.set(ctx, s.store.Ref(s.cols.Favorites).Child(fv.User).Child(pid), pid); err != nil {
				return sum, err
			}
			sum.Favorites++
		}
	}

	debuglog.WithFields(map[string]any{"posts": sum.Posts, "users": sum.Users}).Infof("seed: applied fixture")
	return sum, nil
}

func (s *Seeder) set(ctx context.Context, ref remote.Handle, v any) error {
	if err := storage.Retry(ctx, func() error { return ref.Set(ctx, v) }); err != nil {
		return fmt.Errorf("seeding %s: %w", ref.Path(), err)
	}
	return nil
}

func (s *Seeder) idOr(id string) string {
	if id != "" {
		return id
	}
	return s.newID()
}

func (s *Seeder) stamp(t time.Time) string {
	if t.IsZero() {
		t = s.now()
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}
