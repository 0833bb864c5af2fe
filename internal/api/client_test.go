package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var started = time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

type captured struct {
	method string
	path   string
	header http.Header
	body   map[string]any
}

type recorder struct {
	mu   sync.Mutex
	reqs []captured
}

func (r *recorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.reqs...)
}

func server(t *testing.T, status int, response string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{method: r.Method, path: r.URL.Path, header: r.Header.Clone()}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			assert.NoError(t, json.Unmarshal(data, &c.body))
		}
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, c)
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "2026-03-04T05:06:07.890Z", FormatTime(started))

	local := time.FixedZone("BRT", -3*3600)
	assert.Equal(t, "2026-03-04T05:06:07.000Z", FormatTime(time.Date(2026, 3, 4, 2, 6, 7, 0, local)))
}

func TestCreateActivity(t *testing.T) {
	srv, reqs := server(t, http.StatusCreated, `{"data":{"id":42}}`)
	c := NewClient(srv.URL+"/", "secret", nil)

	id, err := c.CreateActivity(context.Background(), 7, "eat", started)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	got := reqs.all()
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, http.MethodPost, r.method)
	assert.Equal(t, "/activities/", r.path)
	assert.Equal(t, "secret", r.header.Get("x-api-key"))
	assert.Equal(t, "application/json", r.header.Get("Content-Type"))
	_, err = uuid.Parse(r.header.Get("X-Request-ID"))
	assert.NoError(t, err, "request id must be a uuid")

	assert.Equal(t, float64(7), r.body["catId"])
	assert.Equal(t, "eat", r.body["title"])
	assert.Equal(t, "2026-03-04T05:06:07.890Z", r.body["startedAt"])
	assert.Equal(t, r.body["startedAt"], r.body["endedAt"])
}

func TestCreateActivityMissingID(t *testing.T) {
	for _, body := range []string{`{"data":{}}`, `{}`, `{"data":{"id":0}}`} {
		srv, _ := server(t, http.StatusOK, body)
		c := NewClient(srv.URL, "k", nil)

		_, err := c.CreateActivity(context.Background(), 1, "eat", started)
		assert.Error(t, err, body)
	}
}

func TestCreateActivityBadJSON(t *testing.T) {
	srv, _ := server(t, http.StatusOK, `not json`)
	c := NewClient(srv.URL, "k", nil)

	_, err := c.CreateActivity(context.Background(), 1, "eat", started)
	assert.ErrorContains(t, err, "decode")
}

func TestCreateActivityHTTPError(t *testing.T) {
	srv, _ := server(t, http.StatusInternalServerError, `{"error":"boom"}`)
	c := NewClient(srv.URL, "k", nil)

	_, err := c.CreateActivity(context.Background(), 1, "eat", started)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusInternalServerError, serr.Code)
	assert.Contains(t, serr.Body, "boom")
}

func TestFinishActivity(t *testing.T) {
	srv, reqs := server(t, http.StatusOK, `{"data":{"id":42}}`)
	c := NewClient(srv.URL, "secret", nil)

	require.NoError(t, c.FinishActivity(context.Background(), 42, started.Add(90*time.Second)))

	got := reqs.all()
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, http.MethodPatch, r.method)
	assert.Equal(t, "/activities/42", r.path)
	assert.Equal(t, "2026-03-04T05:07:37.890Z", r.body["endedAt"])
	assert.Len(t, r.body, 1)
}

func TestFinishActivityNotFound(t *testing.T) {
	srv, _ := server(t, http.StatusNotFound, `{}`)
	c := NewClient(srv.URL, "k", nil)

	err := c.FinishActivity(context.Background(), 9, started)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.Code)
}

func TestTransportError(t *testing.T) {
	srv, _ := server(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	c := NewClient(url, "k", NewHTTPClient(time.Second))
	_, err := c.CreateActivity(context.Background(), 1, "eat", started)
	assert.Error(t, err)
	var serr *StatusError
	assert.False(t, errors.As(err, &serr))
}

func TestProbe(t *testing.T) {
	tests := []struct {
		status int
		ok     bool
	}{
		{http.StatusOK, true},
		{http.StatusUnauthorized, true},
		{http.StatusNotFound, true},
		{http.StatusInternalServerError, false},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, reqs := server(t, tt.status, ``)
			c := NewClient(srv.URL, "k", nil)

			err := c.Probe(context.Background())
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			got := reqs.all()
			require.Len(t, got, 1)
			assert.Equal(t, "/", got[0].path)
			assert.Equal(t, http.MethodGet, got[0].method)
		})
	}
}
