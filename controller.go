package privatehttpcache

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dylandreimerink/privatehttpcache/store"
)

//CacheStatus describes how a response relates to the cache.
// Every response handed to a caller carries its status in the
// CacheStatusHeader so it is always possible to tell whether a response was
// served from cache or from the network.
type CacheStatus string

const (
	//CacheStatusMiss means no usable entry existed, the response came from the network
	CacheStatusMiss CacheStatus = "miss"

	//CacheStatusFresh means a fresh stored entry was served without contacting the origin
	CacheStatusFresh CacheStatus = "fresh"

	//CacheStatusRevalidated means a stale entry was refreshed by a 304 from the origin
	CacheStatusRevalidated CacheStatus = "revalidated"

	//CacheStatusBypass means caching was not attempted for this request method
	CacheStatusBypass CacheStatus = "bypass"

	//CacheStatusInvalidated means the request removed a stored entry for its URL
	CacheStatusInvalidated CacheStatus = "invalidated"
)

const (
	//FromCacheHeader is set to "1" on responses which were served from the
	// cache instead of the network
	FromCacheHeader = "X-From-Cache"

	//CacheStatusHeader carries the CacheStatus of the response
	CacheStatusHeader = "X-Cache-Status"
)

//The CacheController is the decision engine of the cache. It orchestrates
// lookups, freshness evaluation, conditional request construction, response
// merging and storage decisions.
//
// The zero value with a Cache set is usable, all other fields are optional
// and defaulted on first use.
type CacheController struct {

	//Cache is the storage backend. If the backend also implements
	// store.SeparateBodyCache, entry bodies are stored separately from the
	// metadata and read back as streams.
	Cache store.Cache

	//Config defines which methods and status codes are cacheable
	// if nil the defaults from NewCacheConfig are used
	Config *CacheConfig

	//Keyer derives cache keys from requests
	Keyer Keyer

	//Serializer converts entries to and from stored bytes
	// if nil the WireSerializer is used
	Serializer Serializer

	//Heuristic, if set, may rewrite response headers before the storage
	// decision is evaluated
	Heuristic Heuristic

	//The Logger which will be used for logging
	// if nil the default logger will be used
	Logger *logrus.Logger
}

func (controller *CacheController) config() *CacheConfig {
	if controller.Config == nil {
		controller.Config = NewCacheConfig()
	}

	return controller.Config
}

func (controller *CacheController) serializer() Serializer {
	if controller.Serializer == nil {
		controller.Serializer = WireSerializer{}
	}

	return controller.Serializer
}

func (controller *CacheController) logger() *logrus.Logger {
	if controller.Logger == nil {
		controller.Logger = logrus.New()
	}

	return controller.Logger
}

//CacheURL derives the cache key for a raw URL, independent of a parsed
// request. External invalidation uses this to compute the same key the
// controller would derive for a cacheable request to the URL.
func (controller *CacheController) CacheURL(rawurl string) string {
	method := http.MethodGet
	if methods := controller.config().CacheableMethods; len(methods) > 0 {
		method = methods[0]
	}

	return controller.Keyer.PrimaryKey(method, rawurl)
}

//CachedRequest looks the request up in storage and returns the stored
// response if it may be served without contacting the origin.
//
// A nil return means the caller must perform a network fetch: either no
// entry exists, or the entry is stale and must be revalidated with the
// headers from ConditionalHeaders. Storage and decode failures are treated
// as a miss and never propagate to the caller.
func (controller *CacheController) CachedRequest(req *http.Request) *http.Response {
	key := controller.requestKey(req)

	entry, found := controller.loadEntry(key)
	if !found {
		return nil
	}

	//Permanent redirects are served from cache regardless of freshness
	if isPermanentRedirect(entry.StatusCode) {
		return controller.entryResponse(req, key, entry, CacheStatusFresh)
	}

	//The client can always force a revalidation
	requestDirectives := splitCacheControlHeader(req.Header[CacheControlHeader])
	if hasDirective(requestDirectives, NoCacheDirective) {
		return nil
	}

	//A stored no-cache demands revalidation on every use
	entryDirectives := splitCacheControlHeader(entry.Header[CacheControlHeader])
	if hasDirective(entryDirectives, NoCacheDirective) {
		return nil
	}

	lifetime, found := freshnessLifetime(entry.Header)
	if !found {
		return nil
	}

	age := responseAge(entry.Header, entry.StoredAt)

	//The client may demand a response younger than its declared lifetime
	if maxAge, found := directiveValue(requestDirectives, MaxAgeDirective); found {
		if requestLifetime := time.Duration(maxAge) * time.Second; requestLifetime < lifetime {
			lifetime = requestLifetime
		}
	}

	if age >= lifetime {
		//The entry is stale, the caller has to revalidate it at the origin
		return nil
	}

	return controller.entryResponse(req, key, entry, CacheStatusFresh)
}

//CacheResponse evaluates a fully received response for storage and stores
// it if it is eligible, replacing any prior entry for the key.
//
// body must be the fully captured response body, resp.Body is never read.
// Storage failures are logged and otherwise ignored, a failed write never
// alters the response the caller sees.
func (controller *CacheController) CacheResponse(req *http.Request, resp *http.Response, body []byte) {
	config := controller.config()

	if controller.Heuristic != nil {
		resp = controller.Heuristic.Apply(resp)
	}

	//Permanent redirects are always stored, regardless of explicit directives
	if !isPermanentRedirect(resp.StatusCode) {
		if !shouldStoreResponse(config, req, resp) {
			//An existing entry for this key is deliberately left untouched
			return
		}

		//An incomplete body is never cached
		if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
			if length, err := strconv.ParseInt(contentLength, 10, 64); err == nil && length != int64(len(body)) {
				return
			}
		}
	}

	primaryKey := controller.Keyer.PrimaryKey(req.Method, req.URL.String())
	varyFields := varyFieldsFromResponse(resp)

	//Record the Vary set declared by this response so later lookups derive
	// the same secondary key
	if err := controller.Cache.Set(varyFieldsKey(primaryKey), []byte(strings.Join(varyFields, "\n"))); err != nil {
		controller.logger().WithError(err).WithField("cache-key", primaryKey).Error("Error while storing vary fields in cache")
		return
	}

	key := controller.Keyer.VaryKey(primaryKey, varyFields, req.Header)

	if body == nil {
		body = []byte{}
	}

	entry := &Entry{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now(),
	}

	//Cache markers describe a single delivery, they are not part of the entry
	entry.Header.Del(FromCacheHeader)
	entry.Header.Del(CacheStatusHeader)

	controller.storeEntry(key, entry)
}

//UpdateCachedResponse merges a 304 Not Modified response into the stored
// entry: the 304's headers take precedence over the stored headers, the
// storage timestamp is refreshed and the merged entry is stored again under
// the same key. The merged response is returned as the usable representation.
//
// If no entry exists for the key the raw 304 is returned unchanged and no
// body is fabricated.
func (controller *CacheController) UpdateCachedResponse(req *http.Request, resp *http.Response) *http.Response {
	key := controller.requestKey(req)

	entry, found := controller.loadEntry(key)
	if !found {
		//A 304 for a request we never stored is a protocol violation by the
		// origin (or a race with an eviction), pass it through as is
		controller.logger().WithField("cache-key", key).Warning("Received a 304 response for a request with no stored entry")
		return resp
	}

	//Refreshed validators and expiration win over the stored values.
	// Content-Length is excluded, a 304 carries no body so its length does
	// not describe the stored one.
	for header, values := range resp.Header {
		if header == "Content-Length" {
			continue
		}
		entry.Header[header] = values
	}

	entry.StoredAt = time.Now()

	controller.storeEntry(key, entry)

	merged := controller.entryResponse(req, key, entry, CacheStatusRevalidated)
	if merged == nil {
		//The stored body vanished between the conditional request and the
		// merge, the raw 304 is the only truthful response left
		controller.logger().WithField("cache-key", key).Warning("Stored entry lost its body, passing the 304 response through")
		return resp
	}

	return merged
}

//Invalidate removes any stored entry for the request's URL.
// It derives the key for every cacheable method, a successful DELETE to a
// URL removes the stored GET entry for the same URL.
func (controller *CacheController) Invalidate(req *http.Request) {
	for _, method := range controller.config().CacheableMethods {
		primaryKey := controller.Keyer.PrimaryKey(method, req.URL.String())

		//The variant for this request's headers, the bare primary key and
		// the vary sidecar are all removed
		key := controller.Keyer.VaryKey(primaryKey, controller.varyFields(primaryKey), req.Header)

		for _, deleteKey := range []string{key, primaryKey, varyFieldsKey(primaryKey)} {
			if err := controller.Cache.Delete(deleteKey); err != nil {
				controller.logger().WithError(err).WithField("cache-key", deleteKey).Error("Error while invalidating cache entry")
			}
		}
	}
}

//requestKey derives the full cache key for a request, including the values
// of the headers named by the stored response's Vary set
func (controller *CacheController) requestKey(req *http.Request) string {
	primaryKey := controller.Keyer.PrimaryKey(req.Method, req.URL.String())
	return controller.Keyer.VaryKey(primaryKey, controller.varyFields(primaryKey), req.Header)
}

//varyFields loads the Vary set recorded for a primary key.
// Any failure is treated as an empty set, a lookup must never fail because
// the sidecar is unreadable.
func (controller *CacheController) varyFields(primaryKey string) []string {
	value, found, err := controller.Cache.Get(varyFieldsKey(primaryKey))
	if err != nil {
		controller.logger().WithError(err).WithField("cache-key", primaryKey).Error("Error while loading vary fields from cache")
		return nil
	}

	if !found || len(value) == 0 {
		return nil
	}

	return strings.Split(string(value), "\n")
}

//varyFieldsFromResponse extracts the header names declared by the response's Vary header
func varyFieldsFromResponse(resp *http.Response) []string {
	vary := resp.Header.Get(VaryHeader)
	if vary == "" {
		return nil
	}

	fields := []string{}
	for _, field := range strings.Split(vary, ",") {
		fields = append(fields, strings.TrimSpace(field))
	}

	return fields
}

//loadEntry fetches and decodes the entry for a key.
// Storage failures and decode failures are both treated as a miss, a
// corrupted entry is additionally deleted so it doesn't get decoded again.
func (controller *CacheController) loadEntry(key string) (*Entry, bool) {
	value, found, err := controller.Cache.Get(key)
	if err != nil {
		controller.logger().WithError(err).WithField("cache-key", key).Error("Error while attempting to find cache key in cache")
		return nil, false
	}

	if !found {
		return nil, false
	}

	entry, err := controller.serializer().Decode(value)
	if err != nil {
		controller.logger().WithError(err).WithField("cache-key", key).Warning("Unable to decode stored cache entry, treating it as a miss")

		if err := controller.Cache.Delete(key); err != nil {
			controller.logger().WithError(err).WithField("cache-key", key).Error("Error while deleting undecodable cache entry")
		}

		return nil, false
	}

	return entry, true
}

//storeEntry encodes and writes an entry.
// With a separate-body backend the body is written next to the metadata and
// stripped from the encoded entry. Write failures are logged, never returned:
// caching is best effort and must not alter response semantics.
func (controller *CacheController) storeEntry(key string, entry *Entry) {
	log := controller.logger().WithField("cache-key", key)

	separate, separateBody := controller.Cache.(store.SeparateBodyCache)

	body := entry.Body
	if separateBody {
		metadata := *entry
		metadata.Body = nil
		entry = &metadata
	}

	value, err := controller.serializer().Encode(entry)
	if err != nil {
		log.WithError(err).Error("Error while encoding cache entry")
		return
	}

	if err := controller.Cache.Set(key, value); err != nil {
		log.WithError(err).Error("Error while attempting to store response in cache")
		return
	}

	//A nil body means only the metadata changed (a revalidation refresh),
	// the stored body stays as it is
	if separateBody && body != nil {
		if err := separate.SetBody(key, body); err != nil {
			log.WithError(err).Error("Error while attempting to store response body in cache")

			//Without its body the metadata must not stay visible
			if err := separate.Delete(key); err != nil {
				log.WithError(err).Error("Error while removing metadata of a failed body write")
			}
		}
	}
}

//entryResponse reconstructs a usable response from a stored entry.
// The response is marked as served from cache.
func (controller *CacheController) entryResponse(req *http.Request, key string, entry *Entry, status CacheStatus) *http.Response {
	header := entry.Header.Clone()
	header.Set(FromCacheHeader, "1")
	header.Set(CacheStatusHeader, string(status))

	//The stored age is surfaced so downstream caches can do their own math
	if age := responseAge(entry.Header, entry.StoredAt); age > 0 {
		header.Set(AgeHeader, strconv.FormatInt(int64(age/time.Second), 10))
	}

	response := &http.Response{
		Status:     entry.Status,
		StatusCode: entry.StatusCode,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Request:    req,
	}

	if separate, ok := controller.Cache.(store.SeparateBodyCache); ok && entry.Body == nil {
		body, found, err := separate.GetBody(key)
		if err != nil || !found {
			if err != nil {
				controller.logger().WithError(err).WithField("cache-key", key).Error("Error while loading cached response body")
			}

			//Metadata without a body is not a usable entry, remove it so
			// the next lookup is a clean miss instead of repeating this
			if err := controller.Cache.Delete(key); err != nil {
				controller.logger().WithError(err).WithField("cache-key", key).Error("Error while removing bodyless cache entry")
			}

			return nil
		}

		response.Body = body
		response.ContentLength = -1

		return response
	}

	response.Body = io.NopCloser(bytes.NewReader(entry.Body))
	response.ContentLength = int64(len(entry.Body))

	return response
}
