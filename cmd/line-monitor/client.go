package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"line-monitor/internal/domain"
	httpapi "line-monitor/internal/http"
	"line-monitor/internal/indicator"
)

// envelope mirrors httpapi.Result with the payload left raw
type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// apiClient talks to a running line-monitor over its JSON API. No retries:
// a repeated POST would register the stoppage twice.
type apiClient struct {
	http *resty.Client
}

func newAPIClient(server string, timeout time.Duration) *apiClient {
	return &apiClient{
		http: resty.New().
			SetBaseURL(server).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var env envelope
	req := c.http.R().SetResult(&env).SetError(&env)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	if resp.IsError() || env.Code != httpapi.ResultSuccess {
		msg := env.Message
		if msg == "" {
			msg = resp.Status()
		}
		return fmt.Errorf("%s %s: %s", method, path, msg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func (c *apiClient) Indicators() (*httpapi.IndicatorsResponse, error) {
	var out httpapi.IndicatorsResponse
	if err := c.do(resty.MethodGet, "/api/v1/indicators", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Trend() ([]domain.DailyAggregate, error) {
	var out []domain.DailyAggregate
	err := c.do(resty.MethodGet, "/api/v1/indicators/trend", nil, &out)
	return out, err
}

func (c *apiClient) Statistics() ([]domain.CategoryStatistic, error) {
	var out []domain.CategoryStatistic
	err := c.do(resty.MethodGet, "/api/v1/stoppages/statistics", nil, &out)
	return out, err
}

func (c *apiClient) Register(req indicator.RegisterStoppageRequest) (*domain.StoppageEvent, error) {
	var out domain.StoppageEvent
	if err := c.do(resty.MethodPost, "/api/v1/stoppages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Refresh() error {
	return c.do(resty.MethodPost, "/api/v1/indicators/refresh", nil, nil)
}

// Report downloads the xlsx workbook
func (c *apiClient) Report() ([]byte, error) {
	resp, err := c.http.R().
		SetHeader("Accept", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet").
		Get("/api/v1/stoppages/report.xlsx")
	if err != nil {
		return nil, fmt.Errorf("download report: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download report: %s", resp.Status())
	}
	return resp.Body(), nil
}
