package deezer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/backwater/internal/provider"
	"github.com/sydlexius/backwater/internal/provider/providertest"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/artist" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.URL.Query().Get("q") {
		case "Daft Punk":
			_, _ = w.Write([]byte(`{"data":[
			  {"id":1,"name":"Daft Punk Tribute","picture_xl":"https://dz/wrong.jpg"},
			  {"id":27,"name":"daft punk","picture_small":"https://dz/s.jpg","picture_big":"https://dz/b.jpg","picture_xl":"https://dz/xl.jpg"}
			],"total":2}`))
		case "No Pictures":
			_, _ = w.Write([]byte(`{"data":[{"id":2,"name":"No Pictures"}],"total":1}`))
		case "Quota":
			_, _ = w.Write([]byte(`{"error":{"type":"Exception","message":"Quota limit exceeded","code":4}}`))
		case "Down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(`{"data":[],"total":0}`))
		}
	}))
}

func TestFetch(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := NewWithBaseURL(srv.Client(), provider.NewRateLimiterMap(nil), providertest.Logger(), srv.URL)

	tests := []struct {
		name  string
		want  provider.Kind
		image string
	}{
		{"Daft Punk", provider.KindSuccess, "https://dz/xl.jpg"},
		{"Unknown", provider.KindNotFound, ""},
		{"No Pictures", provider.KindNotFound, ""},
		{"", provider.KindNotFound, ""},
		{"Quota", provider.KindTemporary, ""},
		{"Down", provider.KindTemporary, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Fetch(context.Background(), provider.ArtistQuery{Name: tt.name})
			require.NoError(t, err)
			require.Equal(t, tt.want, res.Kind, "err %v", res.Err)
			assert.Equal(t, tt.image, res.Data[provider.FieldImageURL])
		})
	}
}

func TestFetch_Cancelled(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := NewWithBaseURL(srv.Client(), provider.NewRateLimiterMap(nil), providertest.Logger(), srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Fetch(ctx, provider.ArtistQuery{Name: "Daft Punk"})
	assert.ErrorIs(t, err, context.Canceled)
}
