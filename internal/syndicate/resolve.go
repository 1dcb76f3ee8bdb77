package syndicate

import (
	"net/url"
	"strings"
)

// Resolved is the feed behind a page URL.
type Resolved struct {
	PageURL string
	FeedURL string
	// Title is used when the feed itself carries none.
	Title string
}

// Resolver maps site URLs that are not feeds to the feed that serves them.
type Resolver interface {
	Name() string
	CanHandle(u *url.URL) bool
	Resolve(u *url.URL) Resolved
	// Priority breaks ties between resolvers that handle the same URL;
	// higher wins.
	Priority() int
}

// Resolvers picks the best resolver for a URL.
type Resolvers []Resolver

// DefaultResolvers knows subreddits and YouTube channels.
func DefaultResolvers() Resolvers {
	return Resolvers{Reddit{}, YouTube{}}
}

// Resolve returns the feed for raw, or raw itself when no resolver applies.
// raw must already be normalized.
func (rs Resolvers) Resolve(raw string) Resolved {
	u, err := url.Parse(raw)
	if err != nil {
		return Resolved{PageURL: raw, FeedURL: raw}
	}
	var best Resolver
	for _, r := range rs {
		if r.CanHandle(u) && (best == nil || r.Priority() > best.Priority()) {
			best = r
		}
	}
	if best == nil {
		return Resolved{PageURL: raw, FeedURL: raw}
	}
	res := best.Resolve(u)
	res.PageURL = raw
	return res
}

// Reddit turns a subreddit page into its .rss listing.
type Reddit struct{}

func (Reddit) Name() string  { return "reddit" }
func (Reddit) Priority() int { return 50 }

func (Reddit) CanHandle(u *url.URL) bool {
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return (host == "reddit.com" || host == "old.reddit.com") &&
		strings.HasPrefix(u.Path, "/r/") && !strings.HasSuffix(u.Path, ".rss")
}

func (Reddit) Resolve(u *url.URL) Resolved {
	sub := strings.SplitN(strings.TrimPrefix(u.Path, "/r/"), "/", 2)[0]
	feed := *u
	feed.Path = "/r/" + sub + "/.rss"
	feed.RawQuery = ""
	return Resolved{FeedURL: feed.String(), Title: "r/" + sub}
}

// YouTube turns a channel page into the channel's video feed.
type YouTube struct{}

func (YouTube) Name() string  { return "youtube" }
func (YouTube) Priority() int { return 50 }

func (YouTube) CanHandle(u *url.URL) bool {
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return host == "youtube.com" && strings.HasPrefix(u.Path, "/channel/")
}

func (YouTube) Resolve(u *url.URL) Resolved {
	id := strings.SplitN(strings.TrimPrefix(u.Path, "/channel/"), "/", 2)[0]
	q := url.Values{"channel_id": {id}}
	return Resolved{
		FeedURL: "https://www.youtube.com/feeds/videos.xml?" + q.Encode(),
		Title:   "YouTube channel " + id,
	}
}
