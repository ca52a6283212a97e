package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const ServiceSleep = "oura"

type SleepConfig struct {
	BaseURL string
	APIKey  string
}

// SleepClient reads daily sleep scores from the Oura v2 API.
type SleepClient struct {
	cfg  SleepConfig
	http *http.Client
}

func NewSleepClient(cfg SleepConfig, httpClient *http.Client) *SleepClient {
	return &SleepClient{cfg: cfg, http: httpClient}
}

type ouraDailySleep struct {
	Data []SleepRecord `json:"data"`
}

// DailySleep returns the daily sleep records for r in response order. An
// empty slice means the service has no data for the range.
func (c *SleepClient) DailySleep(ctx context.Context, r DateRange) ([]SleepRecord, error) {
	q := url.Values{}
	q.Set("start_date", FormatDate(r.Start))
	q.Set("end_date", FormatDate(r.End))

	endpoint := joinURL(c.cfg.BaseURL, "/v2/usercollection/daily_sleep") + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build sleep request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var body ouraDailySleep
	if err := do(c.http, ServiceSleep, req, &body); err != nil {
		return nil, err
	}
	if body.Data == nil {
		return []SleepRecord{}, nil
	}
	return body.Data, nil
}
