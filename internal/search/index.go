// Package search keeps a full text index of the loaded feed.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/visibility"
)

// Resolver supplies author names for indexing.
type Resolver interface {
	Resolve(ctx context.Context, id string) model.UserProjection
}

type Result struct {
	PostID     string  `json:"post_id"`
	AuthorID   string  `json:"author_id"`
	AuthorName string  `json:"author_name"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// Index mirrors the most recently loaded post list. It implements
// feed.PostsListener.
type Index struct {
	idx   bleve.Index
	users Resolver

	mu      sync.Mutex
	indexed map[string]struct{}
}

// Open creates or opens the index at path. An empty path keeps the index in
// memory.
func Open(path string, users Resolver) (*Index, error) {
	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(buildIndexMapping())
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("creating index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err != nil {
			idx, err = bleve.New(path, buildIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening search index: %w", err)
	}
	return &Index{idx: idx, users: users, indexed: make(map[string]struct{})}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = true
	text.IncludeTermVectors = true

	author := bleve.NewTextFieldMapping()
	author.Analyzer = standard.Name
	author.Store = true

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name
	exact.Store = true

	dm.AddFieldMappingsAt("text", text)
	dm.AddFieldMappingsAt("author_name", author)
	dm.AddFieldMappingsAt("author_id", exact)
	dm.AddFieldMappingsAt("visibility", exact)

	im.DefaultMapping = dm
	return im
}

// PostsLoaded replaces the indexed documents with posts.
func (i *Index) PostsLoaded(ctx context.Context, posts []model.Post) {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.idx.NewBatch()
	current := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		name := ""
		if i.users != nil {
			name = i.users.Resolve(ctx, p.AuthorID).DisplayName()
		}
		if err := batch.Index(p.ID, map[string]any{
			"text":        p.Text,
			"author_id":   p.AuthorID,
			"author_name": name,
			"visibility":  p.Visibility,
		}); err != nil {
			debuglog.Warnf("search: indexing %s: %v", p.ID, err)
			continue
		}
		current[p.ID] = struct{}{}
	}
	for id := range i.indexed {
		if _, ok := current[id]; !ok {
			batch.Delete(id)
		}
	}
	if err := i.idx.Batch(batch); err != nil {
		debuglog.Errorf("search: applying batch: %v", err)
		return
	}
	i.indexed = current
}

// Search finds posts matching query that viewerID may see.
func (i *Index) Search(query, viewerID string, limit int) ([]Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []Result{}, nil
	}
	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		qt := bleve.NewMatchQuery(tok)
		qt.SetField("text")
		qt.SetBoost(2.0)
		qs = append(qs, qt)
		qtp := bleve.NewPrefixQuery(tok)
		qtp.SetField("text")
		qtp.SetBoost(1.5)
		qs = append(qs, qtp)
		qa := bleve.NewMatchQuery(tok)
		qa.SetField("author_name")
		qs = append(qs, qa)
	}
	if len(qs) == 0 {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"text", "author_id", "author_name", "visibility"}
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		author, _ := h.Fields["author_id"].(string)
		vis, _ := h.Fields["visibility"].(string)
		if !visibility.Visible(model.Post{AuthorID: author, Visibility: vis}, viewerID) {
			continue
		}
		text, _ := h.Fields["text"].(string)
		name, _ := h.Fields["author_name"].(string)
		out = append(out, Result{
			PostID:     h.ID,
			AuthorID:   author,
			AuthorName: name,
			Snippet:    truncate(text, 120),
			Score:      h.Score,
		})
	}
	return out, nil
}

// DocCount reports the number of indexed posts.
func (i *Index) DocCount() (uint64, error) {
	return i.idx.DocCount()
}

func (i *Index) Close() error {
	return i.idx.Close()
}

// tokenize lowercases text and splits it on anything that is not a letter or
// digit, dropping single characters.
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len(term) > 1 {
				terms = append(terms, term)
			}
			current.Reset()
		}
	}
	if current.Len() > 1 {
		terms = append(terms, current.String())
	}
	return terms
}

func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-3]) + "..."
}
