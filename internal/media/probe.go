package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/etherlabsio/go-m3u8/m3u8"
)

var ErrNoVariant = errors.New("master playlist has no variants")

const maxVariantDepth = 3

// Prober fetches HLS playlists to learn a media's duration.
type Prober struct {
	client *http.Client
}

func NewProber(client *http.Client) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{client: client}
}

// Duration returns the total duration in seconds. Master playlists are
// followed to their first variant.
func (p *Prober) Duration(ctx context.Context, playlistURL string) (float64, error) {
	return p.duration(ctx, playlistURL, 0)
}

func (p *Prober) duration(ctx context.Context, playlistURL string, depth int) (float64, error) {
	if depth > maxVariantDepth {
		return 0, fmt.Errorf("playlist %s: too many nested variants", playlistURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("playlist %s: status %d", playlistURL, resp.StatusCode)
	}

	playlist, err := m3u8.Read(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("playlist %s: %w", playlistURL, err)
	}

	if playlist.IsMaster() {
		for _, item := range playlist.Items {
			variant, ok := item.(*m3u8.PlaylistItem)
			if !ok {
				continue
			}
			next, err := resolve(playlistURL, variant.URI)
			if err != nil {
				return 0, err
			}
			return p.duration(ctx, next, depth+1)
		}
		return 0, ErrNoVariant
	}

	return playlist.Duration(), nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	b.Path = path.Join(path.Dir(b.Path), r.Path)
	b.RawQuery = r.RawQuery
	return b.String(), nil
}
