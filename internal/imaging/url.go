package imaging

import "strings"

// NormalizeURL returns the cache key for an image URL: surrounding whitespace,
// the fragment and the query string are removed so that CDN cache-busting
// parameters map to a single entry.
//
//	NormalizeURL("https://cdn.example/p.jpg?w=300#top") == "https://cdn.example/p.jpg"
//	NormalizeURL("img.jpg?x=1") == "img.jpg"
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return s
}
