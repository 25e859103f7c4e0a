package privatehttpcache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heuristicResponse(statusCode int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}

	return &http.Response{
		StatusCode: statusCode,
		Header:     header,
	}
}

func TestExpiresAfterAddsFreshness(t *testing.T) {
	resp := ExpiresAfter{Delta: time.Hour}.Apply(heuristicResponse(http.StatusOK, nil))

	expires, err := http.ParseTime(resp.Header.Get("Expires"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	assert.Equal(t, "public", resp.Header.Get("Cache-Control"))
	assert.Contains(t, resp.Header.Get("Warning"), "113", "Synthetic freshness must carry a 113 warning")
}

func TestExpiresAfterSkipsExplicitFreshness(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
	}{
		{
			name:   "expires header",
			header: http.Header{"Expires": {"Tue, 01 Jan 2030 00:00:00 GMT"}},
		},
		{
			name:   "max-age directive",
			header: http.Header{"Cache-Control": {"max-age=60"}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp := ExpiresAfter{Delta: time.Hour}.Apply(heuristicResponse(http.StatusOK, test.header.Clone()))

			assert.Equal(t, test.header, resp.Header, "A response with explicit freshness must not be touched")
		})
	}
}

func TestLastModifiedHeuristic(t *testing.T) {
	date := time.Now().UTC().Truncate(time.Second)

	//Modified 10 hours before Date, so the inferred lifetime is one hour
	header := http.Header{
		"Date":          {date.Format(http.TimeFormat)},
		"Last-Modified": {date.Add(-10 * time.Hour).Format(http.TimeFormat)},
	}

	resp := LastModified{}.Apply(heuristicResponse(http.StatusOK, header))

	expires, err := http.ParseTime(resp.Header.Get("Expires"))
	require.NoError(t, err)
	assert.Equal(t, date.Add(time.Hour), expires)
	assert.Contains(t, resp.Header.Get("Warning"), "113")
}

func TestLastModifiedLifetimeIsCapped(t *testing.T) {
	date := time.Now().UTC().Truncate(time.Second)

	//A year since the last modification would infer 36.5 days, the cap is a day
	header := http.Header{
		"Date":          {date.Format(http.TimeFormat)},
		"Last-Modified": {date.Add(-365 * 24 * time.Hour).Format(http.TimeFormat)},
	}

	resp := LastModified{}.Apply(heuristicResponse(http.StatusOK, header))

	expires, err := http.ParseTime(resp.Header.Get("Expires"))
	require.NoError(t, err)
	assert.Equal(t, date.Add(24*time.Hour), expires)
}

func TestLastModifiedSkips(t *testing.T) {
	date := time.Now().UTC().Truncate(time.Second)
	validators := http.Header{
		"Date":          {date.Format(http.TimeFormat)},
		"Last-Modified": {date.Add(-10 * time.Hour).Format(http.TimeFormat)},
	}

	withValidators := func(extra http.Header) http.Header {
		header := validators.Clone()
		for name, values := range extra {
			header[name] = values
		}
		return header
	}

	tests := []struct {
		name       string
		statusCode int
		header     http.Header
	}{
		{
			name:       "explicit expires",
			statusCode: http.StatusOK,
			header:     withValidators(http.Header{"Expires": {"Tue, 01 Jan 2030 00:00:00 GMT"}}),
		},
		{
			name:       "max-age directive",
			statusCode: http.StatusOK,
			header:     withValidators(http.Header{"Cache-Control": {"max-age=60"}}),
		},
		{
			name:       "no-cache directive",
			statusCode: http.StatusOK,
			header:     withValidators(http.Header{"Cache-Control": {"no-cache"}}),
		},
		{
			name:       "must-revalidate directive",
			statusCode: http.StatusOK,
			header:     withValidators(http.Header{"Cache-Control": {"must-revalidate"}}),
		},
		{
			name:       "missing validators",
			statusCode: http.StatusOK,
			header:     http.Header{},
		},
		{
			name:       "uncacheable status",
			statusCode: http.StatusUnauthorized,
			header:     validators.Clone(),
		},
		{
			name:       "last-modified after date",
			statusCode: http.StatusOK,
			header: http.Header{
				"Date":          {date.Format(http.TimeFormat)},
				"Last-Modified": {date.Add(time.Hour).Format(http.TimeFormat)},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			before := test.header.Clone()

			resp := LastModified{}.Apply(heuristicResponse(test.statusCode, test.header))

			assert.Equal(t, before, resp.Header, "No lifetime may be inferred")
		})
	}
}

func TestHeuristicFunc(t *testing.T) {
	called := false
	heuristic := HeuristicFunc(func(resp *http.Response) *http.Response {
		called = true
		return resp
	})

	resp := heuristicResponse(http.StatusOK, nil)
	assert.Same(t, resp, heuristic.Apply(resp))
	assert.True(t, called)
}
