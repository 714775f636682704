package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/pkg/httpclient"
)

const anilistQuery = `query ($name: String) {
  Media(search: $name, type: ANIME) {
    id
    idMal
    title { romaji native }
    siteUrl
    coverImage { extraLarge }
  }
}`

// Metadata describes a show across the lookup services. Zero fields are unknown.
type Metadata struct {
	AnilistID   int
	MalID       int
	RomajiTitle string
	NativeTitle string
	SiteURL     string
	CoverImage  string
	KitsuSlug   string
	AniDBID     int
}

// Links renders the markdown link list used in success embeds. Unknown
// services are left out.
func (m *Metadata) Links() string {
	var links []string
	if m.MalID != 0 {
		links = append(links, fmt.Sprintf("[MAL](https://myanimelist.net/anime/%d)", m.MalID))
	}
	if m.SiteURL != "" {
		links = append(links, fmt.Sprintf("[Anilist](%s)", m.SiteURL))
	}
	if m.KitsuSlug != "" {
		links = append(links, fmt.Sprintf("[Kitsu](https://kitsu.io/anime/%s)", m.KitsuSlug))
	}
	if m.AniDBID != 0 {
		links = append(links, fmt.Sprintf("[AniDB](https://anidb.net/anime/%d)", m.AniDBID))
	}
	return strings.Join(links, " | ")
}

// MetadataClient looks shows up on Anilist, Kitsu and the relations crosswalk.
type MetadataClient struct {
	client       *httpclient.Client
	anilistURL   string
	kitsuURL     string
	relationsURL string
	logger       *slog.Logger
}

// NewMetadataClient creates a client for the configured endpoints.
func NewMetadataClient(cfg config.MetadataConfig, client *httpclient.Client) *MetadataClient {
	return &MetadataClient{
		client:       client,
		anilistURL:   cfg.AnilistURL,
		kitsuURL:     cfg.KitsuURL,
		relationsURL: cfg.RelationsURL,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger.
func (c *MetadataClient) WithLogger(logger *slog.Logger) *MetadataClient {
	c.logger = logger
	return c
}

// Lookup finds metadata for showName. An Anilist failure fails the lookup;
// Kitsu and AniDB failures only leave those fields empty.
func (c *MetadataClient) Lookup(ctx context.Context, showName string) (*Metadata, error) {
	name := NormalizeTitle(showName)
	if name == "" {
		return nil, fmt.Errorf("empty show name")
	}

	meta, err := c.anilist(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("anilist lookup: %w", err)
	}

	if slug, err := c.kitsu(ctx, name); err != nil {
		c.logger.WarnContext(ctx, "kitsu lookup failed", slog.String("show", name), slog.String("error", err.Error()))
	} else {
		meta.KitsuSlug = slug
	}

	if id, err := c.anidb(ctx, meta.AnilistID); err != nil {
		c.logger.WarnContext(ctx, "anidb lookup failed", slog.Int("anilist_id", meta.AnilistID), slog.String("error", err.Error()))
	} else {
		meta.AniDBID = id
	}

	return meta, nil
}

func (c *MetadataClient) anilist(ctx context.Context, name string) (*Metadata, error) {
	body := map[string]any{
		"query":     anilistQuery,
		"variables": map[string]string{"name": name},
	}
	resp, err := c.client.PostJSON(ctx, c.anilistURL, body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			Media *struct {
				ID    int `json:"id"`
				IDMal int `json:"idMal"`
				Title struct {
					Romaji string `json:"romaji"`
					Native string `json:"native"`
				} `json:"title"`
				SiteURL    string `json:"siteUrl"`
				CoverImage struct {
					ExtraLarge string `json:"extraLarge"`
				} `json:"coverImage"`
			} `json:"Media"`
		} `json:"data"`
	}
	if err := httpclient.DecodeJSON(resp, &out); err != nil {
		return nil, err
	}
	m := out.Data.Media
	if m == nil {
		return nil, fmt.Errorf("no match for %q", name)
	}
	return &Metadata{
		AnilistID:   m.ID,
		MalID:       m.IDMal,
		RomajiTitle: m.Title.Romaji,
		NativeTitle: m.Title.Native,
		SiteURL:     m.SiteURL,
		CoverImage:  m.CoverImage.ExtraLarge,
	}, nil
}

func (c *MetadataClient) kitsu(ctx context.Context, name string) (string, error) {
	var out struct {
		Data []struct {
			Attributes struct {
				Slug string `json:"slug"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.client.GetJSON(ctx, c.kitsuURL+"?filter[text]="+url.QueryEscape(name), &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("no match for %q", name)
	}
	return out.Data[0].Attributes.Slug, nil
}

func (c *MetadataClient) anidb(ctx context.Context, anilistID int) (int, error) {
	q := url.Values{}
	q.Set("source", "anilist")
	q.Set("id", strconv.Itoa(anilistID))

	var out struct {
		AniDB int `json:"anidb"`
	}
	if err := c.client.GetJSON(ctx, c.relationsURL+"?"+q.Encode(), &out); err != nil {
		return 0, err
	}
	return out.AniDB, nil
}

// NormalizeTitle prepares a show name for search: compatibility forms such as
// fullwidth letters are folded, invisible format characters dropped and
// whitespace collapsed.
func NormalizeTitle(s string) string {
	invisible := runes.Predicate(func(r rune) bool {
		return unicode.Is(unicode.C, r) && !unicode.IsSpace(r)
	})
	t := transform.Chain(norm.NFKC, runes.Remove(invisible))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}
