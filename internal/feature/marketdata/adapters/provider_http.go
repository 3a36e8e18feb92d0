package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"risk_backend/internal/feature/marketdata/adapters/dto"
	"risk_backend/internal/feature/marketdata/domain/entity"
	"risk_backend/internal/feature/marketdata/usecase"
	"risk_backend/internal/shared/calendar"
)

// ProviderConfig holds connection settings for one HTTP price provider.
type ProviderConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPProvider fetches daily prices from a provider's REST API.
type HTTPProvider struct {
	cfg    ProviderConfig
	client *http.Client
}

var _ usecase.Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider client. A nil client gets a default
// one with the configured timeout.
func NewHTTPProvider(cfg ProviderConfig, client *http.Client) *HTTPProvider {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPProvider{cfg: cfg, client: client}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

// FetchPrice retrieves the OHLCV observation for (symbol, date).
func (p *HTTPProvider) FetchPrice(ctx context.Context, symbol string, date time.Time) (entity.PricePoint, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("date", date.Format("2006-01-02"))
	q.Set("apikey", p.cfg.APIKey)

	u := fmt.Sprintf("%s/daily?%s", p.cfg.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return entity.PricePoint{}, err
	}

	res, err := p.client.Do(req)
	if err != nil {
		return entity.PricePoint{}, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "provider", p.cfg.Name, "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return entity.PricePoint{}, fmt.Errorf("%s http %d", p.cfg.Name, res.StatusCode)
	}

	var body dto.DailyPriceResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return entity.PricePoint{}, err
	}
	if body.Status == "error" {
		return entity.PricePoint{}, fmt.Errorf("%s: %s", p.cfg.Name, body.Message)
	}

	o, err := strconv.ParseFloat(body.Open, 64)
	if err != nil {
		return entity.PricePoint{}, fmt.Errorf("parse open %q: %w", body.Open, err)
	}
	h, err := strconv.ParseFloat(body.High, 64)
	if err != nil {
		return entity.PricePoint{}, fmt.Errorf("parse high %q: %w", body.High, err)
	}
	l, err := strconv.ParseFloat(body.Low, 64)
	if err != nil {
		return entity.PricePoint{}, fmt.Errorf("parse low %q: %w", body.Low, err)
	}
	c, err := strconv.ParseFloat(body.Close, 64)
	if err != nil {
		return entity.PricePoint{}, fmt.Errorf("parse close %q: %w", body.Close, err)
	}
	vol, err := strconv.ParseInt(body.Volume, 10, 64)
	if err != nil {
		return entity.PricePoint{}, fmt.Errorf("parse volume %q: %w", body.Volume, err)
	}

	return entity.PricePoint{
		Symbol: symbol,
		Date:   calendar.Normalize(date),
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: vol,
	}, nil
}
