package api

import (
	"context"
	"net/url"
	"strings"

	"github.com/me/alm/pkg/model"
)

// Forecast defaults used by the admin panel.
const (
	DefaultForecastModel = "sarima"
	DefaultForecastSteps = 7
	DefaultForecastDays  = 100
)

var (
	DefaultOrder         = [3]int{2, 1, 2}
	DefaultSeasonalOrder = [4]int{1, 1, 1, 5}
)

// DefaultTickers are the assets offered for forecasting.
var DefaultTickers = []string{"GLD", "PETR4.SA", "VALE3.SA", "WEGE3.SA"}

// NewForecastRequest builds a request for ticker with the default model
// parameters.
func NewForecastRequest(ticker string) model.ForecastRequest {
	order := DefaultOrder
	seasonal := DefaultSeasonalOrder
	return model.ForecastRequest{
		Ticker:        ticker,
		NSteps:        DefaultForecastSteps,
		Order:         &order,
		SeasonalOrder: &seasonal,
		Days:          DefaultForecastDays,
	}
}

// Forecast runs the given forecasting model on the server.
func (c *Client) Forecast(ctx context.Context, modelType string, req model.ForecastRequest) (*model.ForecastResponse, error) {
	if modelType == "" {
		modelType = DefaultForecastModel
	}
	endpoint := c.versioned("/forecast/" + url.PathEscape(strings.ToLower(modelType)))

	var out model.ForecastResponse
	if err := c.PostJSON(ctx, endpoint, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
