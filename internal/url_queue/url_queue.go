package urlqueue

import (
	"fmt"
	"net/url"
	"strings"
)

// pageSuffix is appended to a category URL to address one listing page,
// newest companies first.
const pageSuffix = "/page-%d/?sort=date"

// CategoryQueue is the ordered list of categories for one run. Duplicates
// (after normalisation) are dropped, first occurrence wins.
type CategoryQueue struct {
	seen  map[string]bool
	queue []string
}

func NewCategoryQueue(urls ...string) *CategoryQueue {
	q := &CategoryQueue{seen: make(map[string]bool)}
	for _, u := range urls {
		q.Add(u)
	}
	return q
}

func (q *CategoryQueue) Add(urlStr string) bool {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return false
	}
	normalized := NormalizeURL(urlStr)
	if q.seen[normalized] {
		return false
	}
	q.seen[normalized] = true
	q.queue = append(q.queue, urlStr)
	return true
}

func (q *CategoryQueue) Size() int {
	return len(q.queue)
}

// URLs returns the categories in run order.
func (q *CategoryQueue) URLs() []string {
	return append([]string(nil), q.queue...)
}

func NormalizeURL(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}

	parsed.Fragment = ""
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}

	return parsed.String()
}

// PageTemplate builds listing page URLs of one category.
type PageTemplate struct {
	format string
}

func NewPageTemplate(categoryURL string) PageTemplate {
	return PageTemplate{format: strings.TrimRight(categoryURL, "/") + pageSuffix}
}

func (t PageTemplate) URL(page int) string {
	return fmt.Sprintf(t.format, page)
}
