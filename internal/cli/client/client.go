package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"taf/internal/common"
	"taf/pkg/api"
)

const defaultServerURL = "http://localhost:8080"

type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewFromEnv reads TAF_SERVER_URL and CA_CERT_PATH.
func NewFromEnv() *Client {
	serverURL := os.Getenv("TAF_SERVER_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return New(serverURL, &http.Client{
		Timeout:   30 * time.Second,
		Transport: createTransport(os.Getenv("CA_CERT_PATH")),
	})
}

func New(serverURL string, httpClient *http.Client) *Client {
	return &Client{serverURL: strings.TrimRight(serverURL, "/"), httpClient: httpClient}
}

func createTransport(caCertPath string) *http.Transport {
	tlsConfig := &tls.Config{}
	if caCertPath != "" {
		caCert, err := os.ReadFile(caCertPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fail to read ca cert: %v\n", err)
		} else {
			caCertPool := x509.NewCertPool()
			if caCertPool.AppendCertsFromPEM(caCert) {
				tlsConfig.RootCAs = caCertPool
			} else {
				fmt.Fprintln(os.Stderr, "fail to parse ca cert, use system default cert pool")
			}
		}
	}
	return &http.Transport{TLSClientConfig: tlsConfig}
}

// Do sends body as JSON and decodes the envelope's data into out. A non-zero
// envelope code comes back as a common.ErrNo.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != common.SuccessCode {
		return common.ErrNo{ErrCode: envelope.Code, ErrMsg: envelope.Message}
	}
	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *Client) Trigger(ctx context.Context, req api.TriggerRequest) (*api.TriggerResponse, error) {
	var resp api.TriggerResponse
	if err := c.Do(ctx, http.MethodPost, "/runs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type ListOptions struct {
	Status      string
	Environment string
	Limit       int
}

func (c *Client) ListRuns(ctx context.Context, opts ListOptions) ([]api.RunBrief, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Environment != "" {
		q.Set("env", opts.Environment)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var runs []api.RunBrief
	if err := c.Do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (c *Client) GetRun(ctx context.Context, id uint) (*api.RunBrief, error) {
	var run api.RunBrief
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/runs/%d", id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) Cancel(ctx context.Context, id uint) error {
	return c.Do(ctx, http.MethodPost, fmt.Sprintf("/runs/%d/cancel", id), nil, nil)
}

func (c *Client) Rerun(ctx context.Context, id uint) (uint, error) {
	var resp api.TriggerResponse
	if err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/runs/%d/rerun", id), nil, &resp); err != nil {
		return 0, err
	}
	return resp.RunID, nil
}

func (c *Client) Schedules(ctx context.Context) ([]api.Schedule, error) {
	var schedules []api.Schedule
	if err := c.Do(ctx, http.MethodGet, "/schedules", nil, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (c *Client) Unschedule(ctx context.Context, key string) error {
	return c.Do(ctx, http.MethodDelete, "/schedules/"+url.PathEscape(key), nil, nil)
}

func (c *Client) Stats(ctx context.Context) (*api.Stats, error) {
	var stats api.Stats
	if err := c.Do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) Environments(ctx context.Context) ([]api.Environment, error) {
	var envs []api.Environment
	if err := c.Do(ctx, http.MethodGet, "/environments", nil, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

func (c *Client) Tests(ctx context.Context) (*api.TestCatalog, error) {
	var catalog api.TestCatalog
	if err := c.Do(ctx, http.MethodGet, "/tests", nil, &catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}
