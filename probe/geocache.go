package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/netwatch/netwatch/model"
)

// geoCacheTTL matches spec §4.7/§9 Open Question 3: a 1-hour cache on geo
// lookups, shared between the public-IP worker and the hop prober so a
// route full of the same transit ASN doesn't re-query it per hop.
const geoCacheTTL = time.Hour

// GeoLookup resolves best-effort country/ASN/city for an IP, rate-limited
// by an in-process cache (spec §4.7). A lookup failure or a miss leaves the
// returned Geo zero-valued — it is never treated as an error or alerted on
// (spec §9 Open Question 3).
type GeoLookup struct {
	cache      *gocache.Cache
	endpoint   string // e.g. "https://ipapi.co/%s/json/"
	httpClient *http.Client
}

// NewGeoLookup creates a geo lookup helper hitting endpoint (a printf-style
// URL template with one %s for the IP).
func NewGeoLookup(endpoint string, timeout time.Duration) *GeoLookup {
	return &GeoLookup{
		cache:      gocache.New(geoCacheTTL, 2*geoCacheTTL),
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type geoAPIResponse struct {
	CountryName string `json:"country_name"`
	Asn         string `json:"asn"`
	City        string `json:"city"`
}

// Lookup returns cached geo data for ip if present, otherwise queries the
// provider and caches the result (including a negative result, to avoid
// hammering a provider for an IP that never resolves).
func (g *GeoLookup) Lookup(ctx context.Context, ip string) model.Geo {
	if cached, ok := g.cache.Get(ip); ok {
		geo, _ := cached.(model.Geo)
		return geo
	}

	geo := g.fetch(ctx, ip)
	g.cache.Set(ip, geo, gocache.DefaultExpiration)
	return geo
}

func (g *GeoLookup) fetch(ctx context.Context, ip string) model.Geo {
	url := fmt.Sprintf(g.endpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Geo{}
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return model.Geo{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Geo{}
	}

	var parsed geoAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Geo{}
	}
	return model.Geo{Country: parsed.CountryName, ASN: parsed.Asn, City: parsed.City}
}
