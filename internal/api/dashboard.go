package api

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/me/alm/pkg/model"
)

// DefaultRiskNotebooks are the notebooks shown on the admin dashboard.
var DefaultRiskNotebooks = []string{
	"investment_risk2",
	"investment_risk",
	"interest_rate_risk_liability",
	"interest_rate_risk_assets",
	"crypto_risk2",
	"country_risk",
}

// PortfolioAllocation returns the managed portfolio and its chart.
func (c *Client) PortfolioAllocation(ctx context.Context) (*model.Wallet, error) {
	var w model.Wallet
	if err := c.GetJSON(ctx, "/portfolio-allocation", nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// CashValue returns the invested and uninvested totals.
func (c *Client) CashValue(ctx context.Context) (*model.CashValue, error) {
	var cv model.CashValue
	if err := c.GetJSON(ctx, "/cash-value", nil, &cv); err != nil {
		return nil, err
	}
	return &cv, nil
}

// RiskNotebook returns the rendered HTML of one risk notebook.
func (c *Client) RiskNotebook(ctx context.Context, name string) (string, error) {
	var resp model.RiskNotebookResponse
	if err := c.GetJSON(ctx, "/riskNotebook", url.Values{"notebookName": {name}}, &resp); err != nil {
		return "", err
	}
	return resp.NotebookHTML, nil
}

// NotebookResult is one entry of RiskNotebooks.
type NotebookResult struct {
	Name string
	HTML string
	Err  error
}

// RiskNotebooks fetches names concurrently. Results keep the order of names;
// a failed notebook carries its error and does not affect the others.
func (c *Client) RiskNotebooks(ctx context.Context, names []string) []NotebookResult {
	results := make([]NotebookResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			html, err := c.RiskNotebook(ctx, name)
			if err != nil {
				err = fmt.Errorf("notebook %s: %w", name, err)
			}
			results[i] = NotebookResult{Name: name, HTML: html, Err: err}
		}()
	}
	wg.Wait()
	return results
}
