package privatehttpcache

import (
	"net/http"
)

//ConditionalHeaders returns the validator headers for a conditional request
// to revalidate the stored entry for this request.
//
// A stored entity tag produces an If-None-Match header (unless entity tags
// are disabled in the config), a stored Last-Modified produces an
// If-Modified-Since header. If no stale entry exists, or the entry carries
// no validators, the returned header mapping is empty and no conditional
// request can be made.
func (controller *CacheController) ConditionalHeaders(req *http.Request) http.Header {
	headers := http.Header{}

	entry, found := controller.loadEntry(controller.requestKey(req))
	if !found {
		return headers
	}

	if controller.config().CacheETags {
		if etag := entry.Header.Get(ETagHeader); etag != "" {
			headers.Set("If-None-Match", etag)
		}
	}

	//If-Modified-Since is only defined for GET and HEAD requests as per
	// section 3.3 of RFC 7232
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		if lastModified := entry.Header.Get(LastModifiedHeader); lastModified != "" {
			headers.Set("If-Modified-Since", lastModified)
		}
	}

	return headers
}
