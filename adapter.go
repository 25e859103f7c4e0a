package privatehttpcache

import (
	"bytes"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/dylandreimerink/privatehttpcache/store"
)

//The Transport is an http.RoundTripper which serves responses from a cache
// where possible and stores eligible network responses as their bodies are
// consumed by the caller.
//
// It intercepts requests and responses only, all caching decisions are
// delegated to the CacheController. The inner RoundTripper performs the
// actual network I/O, transport errors pass through unchanged and are never
// retried here.
type Transport struct {

	//Transport is the RoundTripper used to contact the origin server
	// If nil the http.DefaultTransport will be used
	Transport http.RoundTripper

	//Controller makes all caching decisions
	// If nil a controller with an in-memory cache and default config is used
	Controller *CacheController
}

//NewTransport creates a caching Transport on top of the given storage backend
func NewTransport(cache store.Cache) *Transport {
	return &Transport{
		Controller: &CacheController{Cache: cache},
	}
}

func (t *Transport) controller() *CacheController {
	if t.Controller == nil {
		t.Controller = &CacheController{Cache: store.NewTTLCache(0, 0)}
	}

	return t.Controller
}

func (t *Transport) inner() http.RoundTripper {
	if t.Transport == nil {
		return http.DefaultTransport
	}

	return t.Transport
}

//Client returns an http.Client which sends every request through the cache
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	controller := t.controller()
	config := controller.config()

	cacheable := methodIn(config.CacheableMethods, req.Method)

	if cacheable {
		if cached := controller.CachedRequest(req); cached != nil {
			controller.logger().WithFields(logrus.Fields{
				"method": req.Method,
				"url":    req.URL.String(),
			}).Debug("Serving response from cache")

			return cached, nil
		}

		//A stale entry with validators turns this into a conditional request.
		// The request is cloned first, a RoundTripper must not mutate the
		// request it was given.
		if conditional := controller.ConditionalHeaders(req); len(conditional) > 0 {
			req = req.Clone(req.Context())
			for header, values := range conditional {
				req.Header[header] = values
			}
		}
	}

	resp, err := t.inner().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if cacheable {
		resp = t.buildResponse(req, resp)
	} else {
		resp.Header.Set(CacheStatusHeader, string(CacheStatusBypass))
	}

	//Invalidation happens after the response is otherwise fully processed
	// and never blocks the success response
	if methodIn(config.InvalidatingMethods, req.Method) && resp.StatusCode < 400 {
		controller.Invalidate(req)
		resp.Header.Set(CacheStatusHeader, string(CacheStatusInvalidated))
	}

	return resp, nil
}

//buildResponse turns a network response into the response handed to the
// caller, merging in the stored entry on a 304 and arranging for storage of
// cacheable responses once their body has been fully consumed.
func (t *Transport) buildResponse(req *http.Request, resp *http.Response) *http.Response {
	controller := t.controller()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		merged := controller.UpdateCachedResponse(req, resp)

		if merged != resp {
			//We are done with the network response. Compliant origins send
			// no body with a 304 but we cannot be sure, so drain it to
			// release the connection back to the pool.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		return merged

	case isPermanentRedirect(resp.StatusCode):
		//Permanent redirects are stored immediately, their bodies are tiny
		// and the caller may never read a redirect body at all
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			controller.logger().WithError(err).Warning("Unable to read permanent redirect body")
			body = nil
		}

		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.Header.Set(CacheStatusHeader, string(CacheStatusMiss))

		controller.CacheResponse(req, resp, body)

		return resp

	default:
		resp.Header.Set(CacheStatusHeader, string(CacheStatusMiss))

		//Mirror the body as the caller consumes it and commit it to storage
		// only once it has been fully read. An abandoned body is never cached.
		resp.Body = NewBodyCapture(resp.Body, func(body []byte) {
			controller.CacheResponse(req, resp, body)
		})

		return resp
	}
}
