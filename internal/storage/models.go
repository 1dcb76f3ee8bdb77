package storage

import (
	"time"
)

// Source is an RSS or Atom feed imported into the posts collection on behalf
// of a local author.
type Source struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	AuthorID     string    `json:"author_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	LastFetched  time.Time `json:"last_fetched"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	Imported     int       `json:"imported"`
	UpdatedAt    time.Time `json:"updated_at"`
}
