package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ecervera/temario/internal/errors"
	"github.com/ecervera/temario/internal/store"
)

// DefaultPageSize is the page window used when the caller passes zero.
const DefaultPageSize = 10

// defaultViewCacheSize bounds the memoized sorted views.
const defaultViewCacheSize = 64

// Page is one window over a sorted topic view.
type Page struct {
	Items      []*store.Topic
	Page       int
	TotalPages int
}

// TitleHit is one match from the media-catalog title index.
type TitleHit struct {
	MessageID int64
	Title     string
}

// Engine answers catalog queries against store snapshots. All operations are
// pure reads; sorted letter views are memoized in an LRU cache keyed by the
// store's write generation, so any write invalidates them implicitly.
type Engine struct {
	store store.TopicStore
	views *lru.Cache[string, []*store.Topic]
}

// NewEngine creates a query engine over st.
func NewEngine(st store.TopicStore) *Engine {
	views, _ := lru.New[string, []*store.Topic](defaultViewCacheSize)
	return &Engine{store: st, views: views}
}

// ListByLetter returns one page of the non-catalog topics whose bucket
// matches letter ("A".."Z", "Ñ", or "#" for symbols and digits). The page
// number is 1-indexed and clamped into [1, totalPages]; zero matches yield
// an empty page rather than an error.
func (e *Engine) ListByLetter(ctx context.Context, letter string, page, pageSize int) (Page, error) {
	bucket, ok := LetterBucket(letter)
	if !ok {
		return Page{}, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid letter %q", letter), nil)
	}

	cacheKey := fmt.Sprintf("letter:%d:%d", e.store.Generation(), bucket)
	view, hit := e.views.Get(cacheKey)
	if !hit {
		topics, err := e.store.All(ctx)
		if err != nil {
			return Page{}, err
		}
		var filtered []*store.Topic
		for _, t := range topics {
			if t.Kind == store.KindCatalogedMedia {
				continue
			}
			if SortKey(t.DisplayName).Bucket == bucket {
				filtered = append(filtered, t)
			}
		}
		sortTopics(filtered)
		e.views.Add(cacheKey, filtered)
		view = filtered
	}

	items, totalPages := Paginate(view, page, pageSize)
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return Page{Items: items, Page: page, TotalPages: totalPages}, nil
}

// ListRecent returns all topics sorted by creation time, newest first,
// truncated to limit.
func (e *Engine) ListRecent(ctx context.Context, limit int) ([]*store.Topic, error) {
	topics, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].CreatedAt.After(topics[j].CreatedAt)
	})
	return truncate(topics, limit), nil
}

// SearchByName returns topics whose display name contains query
// (case-insensitive, diacritic-folded substring), in catalog sort order,
// truncated to limit. An empty query matches nothing.
func (e *Engine) SearchByName(ctx context.Context, query string, limit int) ([]*store.Topic, error) {
	if query == "" {
		return nil, nil
	}
	needle := Fold(query)

	topics, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*store.Topic
	for _, t := range topics {
		if strings.Contains(Fold(t.DisplayName), needle) {
			matches = append(matches, t)
		}
	}
	sortTopics(matches)
	return truncate(matches, limit), nil
}

// SearchMediaTitles matches query against every title in the cataloged-media
// topic's title index, deduplicated by message id and sorted by title.
// Fails when no catalog topic is configured; an empty query matches nothing.
func (e *Engine) SearchMediaTitles(ctx context.Context, query string, limit int) ([]TitleHit, error) {
	topics, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}

	var media *store.Topic
	for _, t := range topics {
		if t.Kind == store.KindCatalogedMedia {
			media = t
			break
		}
	}
	if media == nil {
		return nil, errors.NoCatalogConfigured()
	}
	if query == "" {
		return nil, nil
	}

	needle := strings.ToLower(query)
	seen := make(map[int64]bool)
	var hits []TitleHit
	for _, entry := range media.Titles {
		if seen[entry.ID] {
			continue
		}
		if strings.Contains(strings.ToLower(entry.Title), needle) {
			seen[entry.ID] = true
			hits = append(hits, TitleHit{MessageID: entry.ID, Title: entry.Title})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return strings.ToLower(hits[i].Title) < strings.ToLower(hits[j].Title)
	})
	return truncate(hits, limit), nil
}

// Paginate slices items into 1-indexed fixed-size windows. The page number
// is clamped into [1, totalPages]; totalPages is always at least 1, so an
// empty input yields an empty first page.
func Paginate[T any](items []T, page, pageSize int) ([]T, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	totalPages := (len(items) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil, totalPages
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], totalPages
}

// sortTopics orders topics by the catalog's total order.
func sortTopics(topics []*store.Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		return Less(SortKey(topics[i].DisplayName), SortKey(topics[j].DisplayName))
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
