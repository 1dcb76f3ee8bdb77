// Package model decodes the raw records of the post, story and user
// collections into typed values. Decoding never fails on a missing or
// malformed field: flags default to false and timestamps become unsortable.
package model

import (
	"strings"

	"github.com/pders01/synfeed/internal/remote"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	PostTypeText  = "TEXT"
	PostTypeImage = "IMAGE"
)

// Record keys of the posts collection.
const (
	KeyID                = "key"
	KeyAuthor            = "uid"
	KeyText              = "post_text"
	KeyImage             = "post_image"
	KeyType              = "post_type"
	KeyVisibility        = "post_visibility"
	KeyRegion            = "post_region"
	KeyPublishDate       = "publish_date"
	KeyHideViewsCount    = "post_hide_views_count"
	KeyHideLikeCount     = "post_hide_like_count"
	KeyHideCommentsCount = "post_hide_comments_count"
	KeyDisableComments   = "post_disable_comments"
	KeyDisableFavorite   = "post_disable_favorite"
)

type Flags struct {
	HideLikeCount     bool `json:"hide_like_count"`
	HideCommentsCount bool `json:"hide_comments_count"`
	DisableComments   bool `json:"disable_comments"`
	DisableFavorite   bool `json:"disable_favorite"`
}

type Post struct {
	ID           string `json:"id"`
	AuthorID     string `json:"author_id"`
	Text         string `json:"text,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Type         string `json:"type"`
	Visibility   string `json:"visibility"`
	CreatedAt    int64  `json:"created_at"`
	HasCreatedAt bool   `json:"-"`
	Flags        Flags  `json:"flags"`
}

// DecodePost builds a Post from a raw record. The id falls back to key when
// the record does not carry its own. ok is false when neither is present.
func DecodePost(key string, rec map[string]any) (Post, bool) {
	p := Post{
		ID:         stringField(rec, KeyID),
		AuthorID:   stringField(rec, KeyAuthor),
		Text:       stringField(rec, KeyText),
		ImageURL:   stringField(rec, KeyImage),
		Type:       stringField(rec, KeyType),
		Visibility: stringField(rec, KeyVisibility),
		Flags: Flags{
			HideLikeCount:     boolField(rec, KeyHideLikeCount),
			HideCommentsCount: boolField(rec, KeyHideCommentsCount),
			DisableComments:   boolField(rec, KeyDisableComments),
			DisableFavorite:   boolField(rec, KeyDisableFavorite),
		},
	}
	if p.ID == "" {
		p.ID = key
	}
	p.CreatedAt, p.HasCreatedAt = remote.AsInt64(rec[KeyPublishDate])
	return p, p.ID != ""
}

type Story struct {
	ID             string `json:"id"`
	AuthorID       string `json:"author_id"`
	PublishDate    int64  `json:"publish_date,omitempty"`
	HasPublishDate bool   `json:"-"`
	Placeholder    bool   `json:"placeholder,omitempty"`
}

func DecodeStory(key string, rec map[string]any) (Story, bool) {
	s := Story{
		ID:       stringField(rec, KeyID),
		AuthorID: stringField(rec, KeyAuthor),
	}
	if s.ID == "" {
		s.ID = key
	}
	s.PublishDate, s.HasPublishDate = remote.AsInt64(rec[KeyPublishDate])
	return s, s.ID != ""
}

// OwnStoryPlaceholder is the synthetic "my story" entry shown first in the
// story strip.
func OwnStoryPlaceholder(viewerID string) Story {
	return Story{AuthorID: viewerID, Placeholder: true}
}

// StoryLabel is the caption under a story avatar.
func StoryLabel(u UserProjection) string {
	switch {
	case u.Fallback:
		return "User Story"
	case present(u.Nickname):
		return u.Nickname
	case present(u.Username):
		return "@" + u.Username
	default:
		return "User Story"
	}
}

func stringField(rec map[string]any, key string) string {
	s, _ := remote.AsString(rec[key])
	return s
}

func boolField(rec map[string]any, key string) bool {
	b, _ := remote.AsBool(rec[key])
	return b
}

// present treats the literal "null" as absent; older clients wrote it in
// place of missing values.
func present(s string) bool {
	return s != "" && !strings.EqualFold(s, "null")
}
