// Package tint caches poster tint colors and schedules their extraction.
//
// A Service sits in front of an Extractor (normally *imaging.Analyzer):
//
//	cache := tint.NewCache(store, tint.CacheOptions{})
//	svc := tint.NewService(cache, imaging.NewAnalyzer(loader, 0), tint.Options{})
//	color := svc.GetColor(ctx, "https://cdn.example/posters/42.webp?w=300")
//
// Colors are keyed by normalized URL (query and fragment removed), expire
// after 24 hours, and are trimmed to the 80 most recently written. The whole
// map is persisted as one JSON object under a namespaced key in a Store
// (file, Redis or memory).
//
// GetColors runs cache misses through at most three concurrent extractions.
// Neither GetColor nor GetColors ever fails; see Service.
package tint
