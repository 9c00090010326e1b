package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"packd/pkg/types"
)

// Client talks to a running packd daemon.
type Client struct {
	Base string
	HTTP *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		Base: strings.TrimRight(base, "/"),
		HTTP: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var er types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, er.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Status() (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.do(http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Packages() ([]types.PackageInfo, error) {
	var body struct {
		Packages []types.PackageInfo `json:"packages"`
	}
	err := c.do(http.MethodGet, "/packages", nil, &body)
	return body.Packages, err
}

func (c *Client) Launch(id string) (types.LaunchResponse, error) {
	var resp types.LaunchResponse
	err := c.do(http.MethodPost, "/packages/"+id+"/launch", nil, &resp)
	return resp, err
}

func (c *Client) Stop(id string) error {
	return c.do(http.MethodPost, "/packages/"+id+"/stop", nil, nil)
}

func (c *Client) Downloads() ([]types.DownloadInfo, error) {
	var body struct {
		Downloads []types.DownloadInfo `json:"downloads"`
	}
	err := c.do(http.MethodGet, "/downloads", nil, &body)
	return body.Downloads, err
}

func (c *Client) StartDownload(req types.DownloadRequest) (types.DownloadInfo, error) {
	var info types.DownloadInfo
	err := c.do(http.MethodPost, "/downloads", req, &info)
	return info, err
}

func (c *Client) CancelDownload(id string) error {
	return c.do(http.MethodPost, "/downloads/"+id+"/cancel", nil, nil)
}
