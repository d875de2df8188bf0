package apispec_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/zapscan/internal/apispec"
	"github.com/raysh454/zapscan/internal/testutil"
	"github.com/raysh454/zapscan/internal/webclient"
)

func newWebClient(t *testing.T, ts *httptest.Server) webclient.WebClient {
	t.Helper()
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, &testutil.DummyLogger{}, ts.Client())
	require.NoError(t, err)
	return wc
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(petsJSON))
	}))
	defer ts.Close()

	f := apispec.NewFetcher(newWebClient(t, ts), 3, 0, &testutil.DummyLogger{})
	doc, err := f.Load(context.Background(), ts.URL+"/swagger.json")

	require.NoError(t, err)
	assert.Len(t, doc.Paths, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetcher_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	f := apispec.NewFetcher(newWebClient(t, ts), 3, 0, &testutil.DummyLogger{})
	_, err := f.Fetch(context.Background(), ts.URL)

	var fe *apispec.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetcher_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{}
	f := apispec.NewFetcher(wc, 3, 0, &testutil.DummyLogger{})

	_, err := f.Fetch(context.Background(), "http://api.test/missing.json")

	var fe *apispec.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 404, fe.StatusCode)
	assert.Equal(t, 1, wc.RequestCount())
}

func TestFetcher_TransportErrorRetried(t *testing.T) {
	t.Parallel()
	url := "http://api.test/swagger.json"
	wc := &testutil.DummyWebClient{FailURLs: map[string]bool{url: true}}
	f := apispec.NewFetcher(wc, 2, 0, &testutil.DummyLogger{})

	_, err := f.Fetch(context.Background(), url)

	require.Error(t, err)
	assert.Equal(t, 2, wc.RequestCount())
}
