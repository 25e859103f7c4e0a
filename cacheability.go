package privatehttpcache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	AgeHeader          = "Age"
	CacheControlHeader = "Cache-Control"
	ExpiresHeader      = "Expires"
	DateHeader         = "Date"
	VaryHeader         = "Vary"
	ETagHeader         = "Etag"
	LastModifiedHeader = "Last-Modified"
	WarningHeader      = "Warning"

	NoCacheDirective        = "no-cache"
	NoStoreDirective        = "no-store"
	MustRevalidateDirective = "must-revalidate"
	MaxAgeDirective         = "max-age"
	PublicDirective         = "public"
)

//permanentRedirectStatuses are stored unconditionally, regardless of any
// cache directives the response carries
var permanentRedirectStatuses = []int{
	http.StatusMovedPermanently,
	http.StatusPermanentRedirect,
}

func isPermanentRedirect(statusCode int) bool {
	return statusIn(permanentRedirectStatuses, statusCode)
}

//splitCacheControlHeader splits the directives from the Cache-Control header values
// The directives are lowercased and trimmed so string comparison is easier
func splitCacheControlHeader(headerValues []string) []string {
	directives := []string{}
	for _, headerValue := range headerValues {
		for _, directive := range strings.Split(strings.ToLower(headerValue), ",") {
			directives = append(directives, strings.TrimSpace(directive))
		}
	}

	return directives
}

//hasDirective checks for the plain form of a cache directive
func hasDirective(directives []string, name string) bool {
	for _, directive := range directives {
		if directive == name || strings.HasPrefix(directive, name+"=") {
			return true
		}
	}

	return false
}

//directiveValue returns the integer argument of a directive like max-age=300.
// The boolean is false if the directive is absent or carries no valid argument.
func directiveValue(directives []string, name string) (int64, bool) {
	for _, directive := range directives {
		if !strings.HasPrefix(directive, name+"=") {
			continue
		}

		//This assumes the origin server adheres to the RFC and sends the argument form.
		// TODO check for the quoted-string form
		value, err := strconv.ParseInt(strings.TrimPrefix(directive, name+"="), 10, 0)
		if err != nil {
			return 0, false
		}

		return value, true
	}

	return 0, false
}

//responseAge calculates the age of a stored response in the way described
// in section 4.2.3 of RFC 7234. The stored-at timestamp is used when the
// origin supplied no Date header.
func responseAge(header http.Header, storedAt time.Time) time.Duration {
	date := storedAt
	if dateString := header.Get(DateHeader); dateString != "" {
		if parsedDate, err := http.ParseTime(dateString); err == nil {
			date = parsedDate
		}
	}

	//The apparent age can't be negative
	apparentAge := time.Since(date)
	if apparentAge < 0 {
		apparentAge = 0
	}

	if ageString := header.Get(AgeHeader); ageString != "" {
		if ageValue, err := strconv.ParseInt(ageString, 10, 0); err == nil {
			return apparentAge + time.Duration(ageValue)*time.Second
		}
	}

	return apparentAge
}

//freshnessLifetime determines how long a stored response may be served
// without revalidation, based on section 4.2.1 of RFC 7234.
// The boolean is false when the response declares no explicit lifetime,
// in which case it must be considered stale.
func freshnessLifetime(header http.Header) (time.Duration, bool) {
	directives := splitCacheControlHeader(header[CacheControlHeader])

	if maxAge, found := directiveValue(directives, MaxAgeDirective); found {
		return time.Duration(maxAge) * time.Second, true
	}

	if expiresString := header.Get(ExpiresHeader); expiresString != "" {
		expires, err := http.ParseTime(expiresString)
		if err != nil {
			//An invalid Expires date is treated as already expired, section 5.3 of RFC 7234
			return 0, true
		}

		//Lifetime is relative to the Date header when present
		date := time.Now()
		if dateString := header.Get(DateHeader); dateString != "" {
			if parsedDate, err := http.ParseTime(dateString); err == nil {
				date = parsedDate
			}
		}

		return expires.Sub(date), true
	}

	return 0, false
}

//shouldStoreResponse determines whether a response is eligible for storage.
// Permanent redirects are handled by the caller and bypass these checks.
func shouldStoreResponse(config *CacheConfig, req *http.Request, resp *http.Response) bool {
	if !methodIn(config.CacheableMethods, req.Method) {
		return false
	}

	//If the Vary header is an asterisk any variation in the request has a
	// different response, which makes the response not cacheable
	if resp.Header.Get(VaryHeader) == "*" {
		return false
	}

	//if the request contains the cache-control header and it contains no-store the response should not be cached
	if hasDirective(splitCacheControlHeader(req.Header[CacheControlHeader]), NoStoreDirective) {
		return false
	}

	//if the response contains the cache-control header and it contains no-store the response should not be cached
	if hasDirective(splitCacheControlHeader(resp.Header[CacheControlHeader]), NoStoreDirective) {
		return false
	}

	return statusIn(config.CacheableStatusCodes, resp.StatusCode)
}
