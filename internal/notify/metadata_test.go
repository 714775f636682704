package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadataServer(t *testing.T, kitsuStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/anilist", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Variables map[string]string `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Variables["name"] != "Frieren" {
			_, _ = w.Write([]byte(`{"data":{"Media":null}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"Media":{"id":154587,"idMal":52991,"title":{"romaji":"Sousou no Frieren","native":"葬送のフリーレン"},"siteUrl":"https://anilist.co/anime/154587","coverImage":{"extraLarge":"https://img/frieren.jpg"}}}}`))
	})
	mux.HandleFunc("/kitsu", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Frieren", r.URL.Query().Get("filter[text]"))
		if kitsuStatus != http.StatusOK {
			w.WriteHeader(kitsuStatus)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"attributes":{"slug":"sousou-no-frieren"}}]}`))
	})
	mux.HandleFunc("/relations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anilist", r.URL.Query().Get("source"))
		assert.Equal(t, "154587", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"anidb":17617,"anilist":154587}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newMetadataClient(server *httptest.Server) *MetadataClient {
	return NewMetadataClient(config.MetadataConfig{
		AnilistURL:   server.URL + "/anilist",
		KitsuURL:     server.URL + "/kitsu",
		RelationsURL: server.URL + "/relations",
	}, testClient())
}

func TestMetadataClient_Lookup(t *testing.T) {
	client := newMetadataClient(metadataServer(t, http.StatusOK))

	meta, err := client.Lookup(context.Background(), "  Frieren ")
	require.NoError(t, err)
	assert.Equal(t, &Metadata{
		AnilistID:   154587,
		MalID:       52991,
		RomajiTitle: "Sousou no Frieren",
		NativeTitle: "葬送のフリーレン",
		SiteURL:     "https://anilist.co/anime/154587",
		CoverImage:  "https://img/frieren.jpg",
		KitsuSlug:   "sousou-no-frieren",
		AniDBID:     17617,
	}, meta)
}

func TestMetadataClient_KitsuFailureDegrades(t *testing.T) {
	client := newMetadataClient(metadataServer(t, http.StatusInternalServerError))

	meta, err := client.Lookup(context.Background(), "Frieren")
	require.NoError(t, err)
	assert.Empty(t, meta.KitsuSlug)
	assert.Equal(t, 17617, meta.AniDBID)
}

func TestMetadataClient_NoAnilistMatch(t *testing.T) {
	client := newMetadataClient(metadataServer(t, http.StatusOK))

	_, err := client.Lookup(context.Background(), "Unknown Show")
	assert.Error(t, err)

	_, err = client.Lookup(context.Background(), "   ")
	assert.Error(t, err)
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Frieren", "Frieren"},
		{"  Spy  x   Family ", "Spy x Family"},
		{"Pok\u00e9mon", "Pok\u00e9mon"},
		{"Poke\u0301mon", "Pok\u00e9mon"},
		{"\uff26\uff35\uff2c\uff2c", "FULL"},
		{"Zero\u200bWidth", "ZeroWidth"},
		{"\u30b8\u30e7\u30b8\u30e7", "\u30b8\u30e7\u30b8\u30e7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in), tt.in)
	}
}
