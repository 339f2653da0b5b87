package model

// ForecastRequest is the body of POST /api/v1/forecast/{model}.
type ForecastRequest struct {
	Ticker        string  `json:"ticker"`
	NSteps        int     `json:"n_steps"`
	Order         *[3]int `json:"order,omitempty"`
	SeasonalOrder *[4]int `json:"seasonal_order,omitempty"`
	Days          int     `json:"days,omitempty"`
}

// ForecastResponse is returned by the forecast endpoint.
type ForecastResponse struct {
	Ticker         string             `json:"ticker"`
	ForecastDates  []string           `json:"forecast_dates"`
	ForecastValues []float64          `json:"forecast_values"`
	PlotBase64     string             `json:"plot_base64,omitempty"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
}

// Asset is one position of the managed portfolio.
type Asset struct {
	Ticker                     string  `json:"ticker"`
	Name                       string  `json:"name"`
	Allocation                 float64 `json:"allocation"`
	HistoricalAnnualReturn     float64 `json:"historicalAnnualReturn"`
	HistoricalAnnualVolatility float64 `json:"historicalAnnualVolatility"`
	ForecastAnnualReturn       float64 `json:"forecastAnnualReturn"`
	ForecastAnnualVolatility   float64 `json:"forecastAnnualVolatility"`
}

// Wallet is returned by GET /portfolio-allocation.
type Wallet struct {
	Portfolio  []Asset `json:"portfolio"`
	PlotBase64 string  `json:"plotBase64"`
}

// CashValue is returned by GET /cash-value.
type CashValue struct {
	Invested float64 `json:"invested"`
	InCash   float64 `json:"inCash"`
}

// RiskNotebookResponse is returned by GET /riskNotebook.
type RiskNotebookResponse struct {
	NotebookHTML string `json:"notebook_html"`
}
