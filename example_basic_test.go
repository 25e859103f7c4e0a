package privatehttpcache_test

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"time"

	"golang.org/x/net/http2"

	"github.com/dylandreimerink/privatehttpcache"
	"github.com/dylandreimerink/privatehttpcache/store"
)

// Example demonstrates the most basic setup, a http.Client which transparently
// caches responses in memory
func Example() {

	transport := privatehttpcache.NewTransport(store.NewTTLCache(0, 0))
	client := transport.Client()

	resp, err := client.Get("https://example.com/")
	if err != nil {
		fmt.Printf("Request failed: %s", err.Error())
		return
	}
	defer resp.Body.Close()

	//The cached copy is committed once the body has been fully consumed
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		fmt.Printf("Error while reading body: %s", err.Error())
	}
}

//ExampleFileCache demonstrates persistent caching on disk, with response
//bodies stored in separate files so they can be streamed back without being
//loaded into memory
func Example_fileCache() {

	cache := store.NewSeparateBodyFileCache("/var/cache/privatehttpcache")

	transport := &privatehttpcache.Transport{
		Controller: &privatehttpcache.CacheController{
			Cache: cache,

			//Responses without explicit freshness information are kept for a day
			Heuristic: privatehttpcache.OneDayCache(),
		},
	}

	client := transport.Client()

	resp, err := client.Get("https://example.com/")
	if err != nil {
		fmt.Printf("Request failed: %s", err.Error())
		return
	}
	defer resp.Body.Close()

	fmt.Println(resp.Header.Get(privatehttpcache.CacheStatusHeader))
}

//ExampleHTTP2 demonstrates caching on top of a HTTP/2 connection to the
//origin server
func Example_http2() {

	systemCertPool, err := x509.SystemCertPool()
	if err != nil {
		panic(err)
	}

	http2Transport := &http2.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs: systemCertPool,
		},
	}

	transport := &privatehttpcache.Transport{
		Transport: http2Transport,
		Controller: &privatehttpcache.CacheController{
			Cache: store.NewTTLCache(15*time.Minute, 10000),
		},
	}

	client := transport.Client()

	resp, err := client.Get("https://example.com/")
	if err != nil {
		fmt.Printf("Request failed: %s", err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.Header.Get(privatehttpcache.FromCacheHeader) == "1" {
		fmt.Println("served from cache")
	}
}
