// Package syndicate imports RSS, Atom and JSON feeds as posts so an external
// blog can be followed through the home feed.
package syndicate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/remote"
	"github.com/pders01/synfeed/internal/storage"
)

var (
	ErrFetch    = errors.New("syndicate: fetch failed")
	ErrNoAuthor = errors.New("syndicate: an author id is required")
)

var tracer = otel.Tracer("github.com/pders01/synfeed/internal/syndicate")

// SourceStore keeps per-source fetch state.
type SourceStore interface {
	GetSource(id string) (*storage.Source, error)
	SaveSource(src *storage.Source) error
}

// Report describes one import run.
type Report struct {
	Source      storage.Source
	Imported    int
	NotModified bool
}

type Importer struct {
	posts      *remote.Store
	sources    SourceStore
	fetcher    *Fetcher
	parser     *Parser
	resolvers  Resolvers
	postsPath  string
	allowLocal bool
	now        func() time.Time
}

type Option func(*Importer)

func WithHTTPClient(c *http.Client) Option {
	return func(im *Importer) { im.fetcher = NewFetcher(c) }
}

// WithLocalHosts permits loopback and private source addresses.
func WithLocalHosts(allow bool) Option {
	return func(im *Importer) { im.allowLocal = allow }
}

func WithPostsPath(path string) Option {
	return func(im *Importer) { im.postsPath = path }
}

// WithResolvers replaces the site resolvers consulted before fetching.
func WithResolvers(rs ...Resolver) Option {
	return func(im *Importer) { im.resolvers = rs }
}

// WithMaxLength caps the text of imported posts.
func WithMaxLength(n int) Option {
	return func(im *Importer) { im.parser.maxLen = n }
}

func New(posts *remote.Store, sources SourceStore, opts ...Option) *Importer {
	im := &Importer{
		posts:     posts,
		sources:   sources,
		fetcher:   NewFetcher(nil),
		parser:    NewParser(1500),
		resolvers: DefaultResolvers(),
		postsPath: "posts",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// SourceID is the stable id of a normalized source URL.
func SourceID(normalizedURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(normalizedURL)).String()
}

// Import fetches rawURL and writes its items as posts by authorID. Known
// sources are fetched conditionally; force skips the validators.
func (im *Importer) Import(ctx context.Context, rawURL, authorID string, force bool) (Report, error) {
	ctx, span := tracer.Start(ctx, "syndicate.Import")
	defer span.End()

	if authorID == "" {
		return Report{}, ErrNoAuthor
	}
	normalized, err := NormalizeURL(rawURL, im.allowLocal)
	if err != nil {
		return Report{}, err
	}
	res := im.resolvers.Resolve(normalized)
	if res.FeedURL != normalized {
		debuglog.Debugf("syndicate: %s resolved to %s", normalized, res.FeedURL)
		normalized = res.FeedURL
	}
	span.SetAttributes(attribute.String("source.url", normalized))

	src, err := im.sources.GetSource(SourceID(normalized))
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			return Report{}, fmt.Errorf("loading source: %w", err)
		}
		src = &storage.Source{ID: SourceID(normalized), URL: normalized, Title: res.Title}
	}
	src.AuthorID = authorID

	im.fetcher.SetIgnoreCache(force)
	resp, err := im.fetcher.Fetch(ctx, src)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return Report{}, err
	}
	if resp == nil {
		src.LastFetched = im.now()
		if err := storage.Retry(ctx, func() error { return im.sources.SaveSource(src) }); err != nil {
			return Report{}, fmt.Errorf("saving source: %w", err)
		}
		debuglog.Infof("syndicate: %s not modified", normalized)
		return Report{Source: *src, NotModified: true}, nil
	}
	defer resp.Body.Close()

	parsed, err := im.parser.Parse(resp.Body, src.ID, authorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return Report{}, err
	}

	posts := im.posts.Ref(im.postsPath)
	written := 0
	for _, e := range parsed.Entries {
		ref := posts.Child(e.ID)
		rec := e.Record
		if err := storage.Retry(ctx, func() error { return ref.Set(ctx, rec) }); err != nil {
			span.RecordError(err)
			return Report{Source: *src, Imported: written}, fmt.Errorf("writing post %s: %w", e.ID, err)
		}
		written++
	}

	now := im.now()
	remember(src, resp, now)
	if parsed.Title != "" {
		src.Title = parsed.Title
	}
	src.Description = parsed.Description
	src.Imported += written
	src.UpdatedAt = now
	if err := storage.Retry(ctx, func() error { return im.sources.SaveSource(src) }); err != nil {
		return Report{Source: *src, Imported: written}, fmt.Errorf("saving source: %w", err)
	}

	span.SetAttributes(attribute.Int("posts.imported", written))
	debuglog.WithFields(map[string]any{"source": src.ID, "imported": written}).Infof("syndicate: imported %s", normalized)
	return Report{Source: *src, Imported: written}, nil
}
