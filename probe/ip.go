package probe

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

// IPProvider is one public-IP lookup endpoint. Field is the JSON field
// holding the address, or "" for a plain-text body.
type IPProvider struct {
	URL   string
	Field string
}

// IPWorker rotates through Providers, validating each response before
// accepting it (spec §4.6 "IP").
type IPWorker struct {
	Repo       *repository.Repository
	Log        *zap.SugaredLogger
	Geo        *GeoLookup
	Providers  []IPProvider
	Interval   time.Duration
	HTTPClient *http.Client

	nextProvider int
}

func (w *IPWorker) Name() string          { return "public-ip" }
func (w *IPWorker) Period() time.Duration { return w.Interval }

func (w *IPWorker) RunOnce(ctx context.Context) error {
	if len(w.Providers) == 0 {
		return nil
	}

	// A malformed response from one provider is a transient failure, never
	// an IP-changed alert; the next provider is tried instead (spec §4.6).
	for i := 0; i < len(w.Providers); i++ {
		provider := w.Providers[(w.nextProvider+i)%len(w.Providers)]
		addr, err := w.fetch(ctx, provider)
		if err != nil || net.ParseIP(addr) == nil {
			continue
		}
		w.nextProvider = (w.nextProvider + i + 1) % len(w.Providers)

		geo := model.Geo{}
		if w.Geo != nil {
			geo = w.Geo.Lookup(ctx, addr)
		}
		w.Repo.UpdatePublicIP(model.PublicIP{
			Address:      addr,
			Geo:          geo,
			FetchedAt:    time.Now(),
			ProviderUsed: provider.URL,
		})
		return nil
	}
	return nil
}

func (w *IPWorker) fetch(ctx context.Context, p IPProvider) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return "", err
	}
	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errBadStatus
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}

	if p.Field == "" {
		return strings.TrimSpace(string(body)), nil
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	val, _ := parsed[p.Field].(string)
	return strings.TrimSpace(val), nil
}

type ipError string

func (e ipError) Error() string { return string(e) }

const errBadStatus = ipError("provider returned non-200 status")
