package privatehttpcache

import (
	"bytes"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
)

//The Keyer derives stable cache keys from requests.
// The same logical request always derives the same key, requests differing
// in a header named by the stored response's Vary set derive different keys.
//
// Keys are plain strings, storage backends are free to hash them for their
// own addressing (the file backend does).
type Keyer struct{}

//PrimaryKey derives the cache key for a request before any Vary header is
// taken into account. It is the method concatenated with the normalized
// absolute URL.
func (Keyer) PrimaryKey(method string, rawurl string) string {
	buf := &bytes.Buffer{}

	buf.WriteString(method)
	buf.WriteString(normalizeURL(rawurl))

	return buf.String()
}

//VaryKey extends a primary key with the request values of the headers named
// by the stored response's Vary set. With an empty Vary set the primary key
// is returned unchanged.
func (Keyer) VaryKey(primaryKey string, varyFields []string, requestHeader http.Header) string {
	if len(varyFields) == 0 {
		return primaryKey
	}

	//Sort the fields so the order in the resulting key is always the same
	fields := make([]string, len(varyFields))
	copy(fields, varyFields)
	sort.Strings(fields)

	buf := &bytes.Buffer{}
	buf.WriteString(primaryKey)

	for _, field := range fields {
		//Separate pieces of the key by the pipe. It is not an allowed value
		// in the method, hostname, URI or header names so it is a good separator
		buf.WriteRune('|')
		buf.WriteString(strings.ToLower(field))
		buf.WriteRune(':')

		//Sort a copy of the values, the caller's header must not be reordered
		values := make([]string, len(requestHeader[textproto.CanonicalMIMEHeaderKey(field)]))
		copy(values, requestHeader[textproto.CanonicalMIMEHeaderKey(field)])
		sort.Strings(values)

		for _, value := range values {
			buf.WriteString(value)
		}
	}

	return buf.String()
}

//varyFieldsKey derives the key of the sidecar entry which records the Vary
// set declared by the stored response for a primary key
func varyFieldsKey(primaryKey string) string {
	return "vary-fields" + primaryKey
}

//normalizeURL normalizes a URL so caching irrelevant differences like query
// parameter order or host capitalization don't produce distinct keys.
// Volatile inputs (fragments) are dropped.
func normalizeURL(rawurl string) string {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		//An unparsable URL is used verbatim, it still yields a stable key
		return rawurl
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	//Parse and re-encode the query, this causes the query to be sorted by key
	// sort order is important when the URL is used in a cache key
	if queryValues, err := url.ParseQuery(parsed.RawQuery); err == nil {
		parsed.RawQuery = queryValues.Encode()
	}

	return parsed.String()
}
