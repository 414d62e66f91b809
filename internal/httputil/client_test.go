package httputil

import (
	"bytes"
	"compress/zlib"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topster/internal/errs"
)

func TestFetchTextSendsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient()
	body, err := c.FetchText(context.Background(), srv.URL, Options{
		Referer: "https://flixhq.to/",
		XHR:     true,
		Headers: map[string]string{"Watchsb": "sbstream"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, UserAgent, got.Get("User-Agent"))
	assert.Equal(t, "https://flixhq.to/", got.Get("Referer"))
	assert.Equal(t, "XMLHttpRequest", got.Get("X-Requested-With"))
	assert.Equal(t, "sbstream", got.Get("Watchsb"))
	assert.Contains(t, got.Get("Accept"), "text/html")
}

func TestFetchJSON(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.Write([]byte(`{"link":"https://megacloud.tv/embed-2/e-1/abc"}`))
	}))
	defer srv.Close()

	var out struct {
		Link string `json:"link"`
	}
	err := NewClient().FetchJSON(context.Background(), srv.URL, Options{}, &out)
	require.NoError(t, err)
	assert.Equal(t, "application/json", accept)
	assert.Equal(t, "https://megacloud.tv/embed-2/e-1/abc", out.Link)
}

func TestFetchJSONParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	var out map[string]any
	err := NewClient().FetchJSON(context.Background(), srv.URL, Options{}, &out)
	require.Error(t, err)
	assert.True(t, errs.IsParse(err))
	assert.False(t, errs.IsNetwork(err))
}

func TestFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient().FetchText(context.Background(), srv.URL+"/missing", Options{})
	require.Error(t, err)
	assert.True(t, errs.IsNetwork(err))
	assert.Equal(t, http.StatusNotFound, errs.StatusOf(err))
	assert.Contains(t, err.Error(), srv.URL+"/missing")
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(WithTimeout(50 * time.Millisecond))
	_, err := c.FetchText(context.Background(), srv.URL, Options{})
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err), "got %v", err)
}

func TestFetchBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte("compressed playlist"))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	body, err := NewClient().FetchText(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "compressed playlist", body)
}

func TestFetchDeflate(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte("#EXTM3U\n#EXT-X-ENDLIST\n"))
	zw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "deflate")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	body, err := NewClient().FetchText(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n#EXT-X-ENDLIST\n", body)
}

func TestFetchRejectsBadScheme(t *testing.T) {
	_, err := NewClient().FetchText(context.Background(), "file:///etc/passwd", Options{})
	require.Error(t, err)
	assert.True(t, errs.IsNetwork(err))
}
