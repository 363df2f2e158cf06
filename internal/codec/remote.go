package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// RemoteProvider talks to a codec service over HTTP multipart forms.
type RemoteProvider struct {
	baseURL string
	client  *http.Client
}

func NewRemoteProvider(baseURL string) *RemoteProvider {
	return &RemoteProvider{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 0, // request lifetime is bounded by the caller's context
		},
	}
}

func (p *RemoteProvider) ExtractText(ctx context.Context, path string) (string, error) {
	body, err := p.postFile(ctx, "/forms/extract/text", path, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (p *RemoteProvider) EncodeRaster(ctx context.Context, data []byte, format string, opts Options) ([]byte, error) {
	fields := map[string]string{"format": format}
	if opts.Quality > 0 {
		fields["quality"] = strconv.Itoa(opts.Quality)
	}
	if opts.Width > 0 {
		fields["width"] = strconv.Itoa(opts.Width)
	}
	if opts.Height > 0 {
		fields["height"] = strconv.Itoa(opts.Height)
	}
	return p.postBytes(ctx, "/forms/raster/encode", "image.bin", data, fields)
}

func (p *RemoteProvider) ParseTabular(ctx context.Context, path string) (Table, error) {
	body, err := p.postFile(ctx, "/forms/tabular/parse", path, nil)
	if err != nil {
		return nil, err
	}
	var table Table
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, &Error{Op: "parse-tabular", Err: fmt.Errorf("malformed table payload: %w", err)}
	}
	return table, nil
}

func (p *RemoteProvider) RenderTabular(ctx context.Context, table Table, format string) ([]byte, error) {
	payload, err := json.Marshal(table)
	if err != nil {
		return nil, &Error{Op: "render-tabular", Err: err}
	}
	return p.postBytes(ctx, "/forms/tabular/render", "table.json", payload, map[string]string{"format": format})
}

func (p *RemoteProvider) postFile(ctx context.Context, endpoint, path string, fields map[string]string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: endpoint, Err: fmt.Errorf("read input: %w", err)}
	}
	return p.postBytes(ctx, endpoint, filepath.Base(path), data, fields)
}

func (p *RemoteProvider) postBytes(ctx context.Context, endpoint, filename string, data []byte, fields map[string]string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return nil, &Error{Op: endpoint, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return nil, &Error{Op: endpoint, Err: err}
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Op: endpoint, Err: err}
	}

	url := p.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, &Error{Op: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		// network-level failures are retryable
		return nil, &Error{Op: endpoint, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: endpoint, Transient: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Op:        endpoint,
			Transient: resp.StatusCode >= 500,
			Err:       fmt.Errorf("codec service returned %d: %s", resp.StatusCode, respBody),
		}
	}
	return respBody, nil
}
