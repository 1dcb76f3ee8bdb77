package syndicate

import (
	"fmt"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/pders01/synfeed/internal/model"
)

var (
	imgPattern = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)
	tagPattern = regexp.MustCompile(`<[^>]*>`)
	wsPattern  = regexp.MustCompile(`\s+`)
)

// Entry is one feed item converted to a post record.
type Entry struct {
	ID     string
	Record map[string]any
}

// Parsed is the result of parsing a feed document.
type Parsed struct {
	Title       string
	Description string
	Entries     []Entry
}

// Parser turns RSS, Atom and JSON feeds into post records.
type Parser struct {
	parser *gofeed.Parser
	maxLen int
	now    func() time.Time
}

func NewParser(maxLen int) *Parser {
	return &Parser{parser: gofeed.NewParser(), maxLen: maxLen, now: time.Now}
}

// Parse reads a feed and builds one public post per item, authored by
// authorID. Post ids are derived from sourceID and the item identity so
// repeated imports overwrite instead of duplicating.
func (p *Parser) Parse(r io.Reader, sourceID, authorID string) (*Parsed, error) {
	f, err := p.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	out := &Parsed{Title: strings.TrimSpace(f.Title), Description: plain(f.Description)}
	for _, item := range f.Items {
		text := p.postText(item)
		if text == "" {
			continue
		}
		id := entryID(sourceID, item)
		published := p.now()
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		rec := map[string]any{
			model.KeyID:                id,
			model.KeyAuthor:            authorID,
			model.KeyText:              text,
			model.KeyType:              model.PostTypeText,
			model.KeyVisibility:        model.VisibilityPublic,
			model.KeyRegion:            "none",
			model.KeyPublishDate:       strconv.FormatInt(published.UnixMilli(), 10),
			model.KeyHideViewsCount:    false,
			model.KeyHideLikeCount:     false,
			model.KeyHideCommentsCount: false,
			model.KeyDisableComments:   false,
			model.KeyDisableFavorite:   false,
		}
		if img := imageOf(item); img != "" {
			rec[model.KeyImage] = img
			rec[model.KeyType] = model.PostTypeImage
		}
		out.Entries = append(out.Entries, Entry{ID: id, Record: rec})
	}
	return out, nil
}

func (p *Parser) postText(item *gofeed.Item) string {
	title := plain(item.Title)
	body := title
	if body == "" {
		body = plain(item.Description)
	}
	if item.Link != "" {
		if body != "" {
			body += "\n\n"
		}
		body += item.Link
	}
	if p.maxLen > 0 && utf8.RuneCountInString(body) > p.maxLen {
		runes := []rune(body)
		body = string(runes[:p.maxLen-3]) + "..."
	}
	return body
}

func entryID(sourceID string, item *gofeed.Item) string {
	key := item.GUID
	if key == "" {
		key = item.Link
	}
	if key == "" {
		key = item.Title + "|" + item.Published
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID+"#"+key)).String()
}

func imageOf(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	if m := imgPattern.FindStringSubmatch(item.Content + " " + item.Description); len(m) > 1 {
		return m[1]
	}
	return ""
}

// plain strips markup and collapses whitespace.
func plain(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(wsPattern.ReplaceAllString(s, " "))
}
