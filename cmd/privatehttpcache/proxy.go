package main

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

//The CachingProxy is a forward proxy which sends every request through a
// caching http.Client. All caching behavior lives in the client's transport,
// the proxy only translates between the server and client side of a request.
type CachingProxy struct {
	Client *http.Client
	Logger *logrus.Logger
}

func (p *CachingProxy) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	outreq, err := p.outboundRequest(req)
	if err != nil {
		http.Error(rw, "Unable to build upstream request", http.StatusBadRequest)
		return
	}

	resp, err := p.Client.Do(outreq)
	if err != nil {
		//Log as a warning since errors here are expected when an origin server is down
		p.Logger.WithError(err).WithField("url", outreq.URL.String()).Warning("Error while proxying request to origin server")

		http.Error(rw, "Unable to contact origin server", http.StatusBadGateway)
		return
	}

	if err := writeHTTPResponse(rw, resp); err != nil {
		p.Logger.WithError(err).Error("Error while writing response to http client")
	}
}

//outboundRequest clones the incoming server side request into a client side
// request with an absolute URL, stripped of hop-by-hop headers
func (p *CachingProxy) outboundRequest(req *http.Request) (*http.Request, error) {
	outreq := req.Clone(req.Context())
	if req.ContentLength == 0 {
		outreq.Body = nil // Issue 16036: nil Body for http.Transport retries
	}
	if outreq.Header == nil {
		outreq.Header = make(http.Header) // Issue 33142: historical behavior was to always allocate
	}

	//A server side request has no absolute URL, rebuild it
	if outreq.URL.Scheme == "" {
		if req.TLS == nil {
			outreq.URL.Scheme = "http"
		} else {
			outreq.URL.Scheme = "https"
		}
	}
	if outreq.URL.Host == "" {
		outreq.URL.Host = req.Host
	}

	//RequestURI must not be set on a client side request
	outreq.RequestURI = ""

	removeConnectionHeaders(outreq.Header)

	// Remove hop-by-hop headers to the backend. Especially
	// important is "Connection" because we want a persistent
	// connection, regardless of what the client sent to us.
	for _, h := range hopHeaders {
		hv := outreq.Header.Get(h)
		if hv == "" {
			continue
		}
		if h == "Te" && hv == "trailers" {
			// Issue 21096: tell backend applications that
			// care about trailer support that we support
			// trailers. (We do, but we don't go out of
			// our way to advertise that unless the
			// incoming client request thought it was
			// worth mentioning)
			continue
		}
		outreq.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		// If we aren't the first proxy retain prior
		// X-Forwarded-For information as a comma+space
		// separated list and fold multiple headers into one.
		if prior, ok := outreq.Header["X-Forwarded-For"]; ok {
			clientIP = strings.Join(prior, ", ") + ", " + clientIP
		}
		outreq.Header.Set("X-Forwarded-For", clientIP)
	}

	return outreq, nil
}

// From net/http/httputil/reverseproxy.go
// removeConnectionHeaders removes hop-by-hop headers listed in the "Connection" header of h.
// See RFC 7230, section 6.1
func removeConnectionHeaders(h http.Header) {
	for _, f := range h["Connection"] {
		for _, sf := range strings.Split(f, ",") {
			if sf = strings.TrimSpace(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
}

// From net/http/httputil/reverseproxy.go
// Hop-by-hop headers. These are removed when sent to the backend.
// As of RFC 7230, hop-by-hop headers are required to appear in the
// Connection header field. These are the headers defined by the
// obsoleted RFC 2616 (section 13.5.1) and are used for backward
// compatibility.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection", // non-standard but still sent by libcurl and rejected by e.g. google
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",      // canonicalized version of "TE"
	"Trailer", // not Trailers per URL above; https://www.rfc-editor.org/errata_search.php?eid=4522
	"Transfer-Encoding",
	"Upgrade",
}

//writeHTTPResponse writes a response to the response writer
func writeHTTPResponse(rw http.ResponseWriter, response *http.Response) error {

	//Set all response headers in the response writer
	for key, values := range response.Header {
		rw.Header()[key] = values
	}

	rw.WriteHeader(response.StatusCode)

	//Close the body before returning
	defer response.Body.Close()
	_, err := io.Copy(rw, response.Body)

	return err
}
