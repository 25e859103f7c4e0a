package privatehttpcache

import (
	"net/http"
)

//CacheConfig defines how the cache behaves.
// The config is an explicit value passed at construction, there are no
// process wide mutable defaults.
type CacheConfig struct {

	//CacheableMethods is a list of request methods for which responses may be cached.
	// It is not advisable to cache unsafe methods like POST. Tho it is possible to do so
	//
	// WARNING values must be uppercase, no case conversion is done at runtime
	CacheableMethods []string

	//InvalidatingMethods is a list of unsafe request methods which invalidate
	// the stored entry for their URL when the origin indicates success.
	//
	// WARNING values must be uppercase, no case conversion is done at runtime
	InvalidatingMethods []string

	//CacheableStatusCodes is the list of response status codes eligible for storage.
	// Permanent redirects are always stored, regardless of this list.
	CacheableStatusCodes []int

	//CacheETags governs whether entity tags participate in revalidation.
	// If true, a stored ETag produces an If-None-Match header on conditional requests.
	CacheETags bool
}

//NewCacheConfig creates a CacheConfig with defaults suitable for a private client side cache
func NewCacheConfig() *CacheConfig {
	return &CacheConfig{
		//Only the idempotent read method is cached by default
		CacheableMethods: []string{http.MethodGet},

		//Methods with create/update/delete semantics invalidate on success
		InvalidatingMethods: []string{http.MethodPut, http.MethodPatch, http.MethodDelete},

		CacheableStatusCodes: []int{
			http.StatusOK,
			http.StatusNonAuthoritativeInfo,
			http.StatusMultipleChoices,
			http.StatusMovedPermanently,
			http.StatusPermanentRedirect,
		},

		CacheETags: true,
	}
}

//methodIn checks if a request method is part of the given method list
func methodIn(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}

	return false
}

//statusIn checks if a status code is part of the given status code list
func statusIn(statusCodes []int, statusCode int) bool {
	for _, code := range statusCodes {
		if code == statusCode {
			return true
		}
	}

	return false
}
