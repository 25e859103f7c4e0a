package privatehttpcache

import (
	"net/http"
	"time"
)

//A Heuristic may rewrite the headers of a fresh network response before the
// storage decision is made, typically to synthesize freshness metadata when
// the origin supplied none.
//
// Apply runs on the calling goroutine and must return the response it was
// given (possibly with modified headers), never nil.
type Heuristic interface {
	Apply(resp *http.Response) *http.Response
}

//HeuristicFunc adapts a plain function to the Heuristic interface
type HeuristicFunc func(resp *http.Response) *http.Response

func (f HeuristicFunc) Apply(resp *http.Response) *http.Response {
	return f(resp)
}

//heuristicWarning is appended whenever a heuristic fabricates freshness,
// so downstream consumers can tell synthetic lifetimes from origin supplied ones
const heuristicWarning = `113 - "Heuristic Expiration"`

//ExpiresAfter gives every response without explicit freshness a fixed lifetime
type ExpiresAfter struct {
	Delta time.Duration
}

func (h ExpiresAfter) Apply(resp *http.Response) *http.Response {
	if resp.Header.Get(ExpiresHeader) != "" {
		return resp
	}
	if hasDirective(splitCacheControlHeader(resp.Header[CacheControlHeader]), MaxAgeDirective) {
		return resp
	}

	resp.Header.Set(ExpiresHeader, time.Now().Add(h.Delta).UTC().Format(http.TimeFormat))
	resp.Header.Set(CacheControlHeader, PublicDirective)
	resp.Header.Add(WarningHeader, heuristicWarning)

	return resp
}

//OneDayCache is an ExpiresAfter preset giving responses a day of freshness
func OneDayCache() Heuristic {
	return ExpiresAfter{Delta: 24 * time.Hour}
}

//lastModifiedCacheableStatuses are the status codes the LastModified
// heuristic is willing to synthesize freshness for
var lastModifiedCacheableStatuses = []int{
	200, 203, 204, 206, 300, 301, 404, 405, 410, 414, 501,
}

//LastModified infers a lifetime of one tenth of the time between the Date
// and Last-Modified headers, capped at 24 hours. This is the heuristic
// suggested in section 4.2.2 of RFC 7234.
type LastModified struct{}

func (LastModified) Apply(resp *http.Response) *http.Response {
	if resp.Header.Get(ExpiresHeader) != "" {
		return resp
	}

	directives := splitCacheControlHeader(resp.Header[CacheControlHeader])
	if hasDirective(directives, MaxAgeDirective) || hasDirective(directives, NoCacheDirective) || hasDirective(directives, NoStoreDirective) || hasDirective(directives, MustRevalidateDirective) {
		return resp
	}

	if !statusIn(lastModifiedCacheableStatuses, resp.StatusCode) {
		return resp
	}

	date, err := http.ParseTime(resp.Header.Get(DateHeader))
	if err != nil {
		return resp
	}

	lastModified, err := http.ParseTime(resp.Header.Get(LastModifiedHeader))
	if err != nil || lastModified.After(date) {
		return resp
	}

	lifetime := date.Sub(lastModified) / 10
	if lifetime > 24*time.Hour {
		lifetime = 24 * time.Hour
	}

	resp.Header.Set(ExpiresHeader, date.Add(lifetime).UTC().Format(http.TimeFormat))
	resp.Header.Add(WarningHeader, heuristicWarning)

	return resp
}
