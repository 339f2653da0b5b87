package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/me/alm/internal/inference"
	"github.com/me/alm/pkg/model"
)

// ListModels returns the inference models known to the server.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	resp, err := Get[model.ModelsListResponse](ctx, c, c.versioned("/models"), nil)
	if err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// SubmitInference uploads a CSV file as the multipart field "file" and
// returns the accepted job. The job runs asynchronously on the server.
func (c *Client) SubmitInference(ctx context.Context, modelName, filename string, data io.Reader) (*model.InferenceUploadResponse, error) {
	endpoint := c.versioned("/inference/" + url.PathEscape(modelName))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("POST %s: build form: %w", endpoint, err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("POST %s: read %s: %w", endpoint, filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("POST %s: build form: %w", endpoint, err)
	}

	body, err := c.do(ctx, http.MethodPost, endpoint, nil, &buf, WithHeader("Content-Type", mw.FormDataContentType()))
	if err != nil {
		return nil, err
	}
	var out model.InferenceUploadResponse
	if err := decode(http.MethodPost, endpoint, body, &out); err != nil {
		return nil, err
	}
	c.logger.Info("inference submitted", "model", modelName, "job_id", out.JobID, "status", out.Status)
	return &out, nil
}

// GetInferenceResult fetches the current state of a job once.
func (c *Client) GetInferenceResult(ctx context.Context, jobID string) (*model.InferenceJob, error) {
	var job model.InferenceJob
	if err := c.GetJSON(ctx, c.versioned("/result/"+url.PathEscape(jobID)), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// PollInferenceResult fetches jobID until it is completed or failed, within
// the attempt budget of cfg.
func (c *Client) PollInferenceResult(ctx context.Context, jobID string, cfg inference.Config) (*model.InferenceJob, error) {
	return inference.NewPoller(c, cfg, c.logger).Poll(ctx, jobID)
}
