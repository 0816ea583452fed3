// Package backend is a client for the HTTP endpoints of a gdbgui-style
// backend: source file reads, directory listings, file modification
// times and signals to the inferior.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/tidwall/gjson"

	debugerrors "github.com/ctagard/gdbmi-mcp/internal/errors"
	"github.com/ctagard/gdbmi-mcp/pkg/types"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// Client talks to one backend. Header is sent with every request and
// typically carries the session cookie and csrf token.
type Client struct {
	BaseURL string
	Header  http.Header
	HTTP    *http.Client
}

// New returns a Client for baseURL, which may be given with a ws:// or
// wss:// scheme; it is mapped to http(s).
func New(baseURL string, header http.Header) *Client {
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "ws://"):
		u = "http://" + strings.TrimPrefix(u, "ws://")
	case strings.HasPrefix(u, "wss://"):
		u = "https://" + strings.TrimPrefix(u, "wss://")
	}
	if h, err := url.Parse(u); err == nil {
		h.Path = ""
		h.RawQuery = ""
		u = h.String()
	}
	return &Client{
		BaseURL: u,
		Header:  header,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
	}
}

type readFileArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// ReadFile reads lines start through end of path. A file the backend
// cannot read is reported as FILE_MISSING.
func (c *Client) ReadFile(ctx context.Context, path string, start, end int) (types.FileChunk, error) {
	chunk, err := post[types.FileChunk](ctx, c, "/read_file", readFileArgs{Path: path, StartLine: start, EndLine: end})
	if err != nil {
		return types.FileChunk{}, debugerrors.FileMissing(path, err)
	}
	if chunk.StartLine == 0 {
		chunk.StartLine = start
	}
	chunk.Path = path
	return chunk, nil
}

// ReadDir lists the children of path.
func (c *Client) ReadDir(ctx context.Context, path string) (types.FsDir, error) {
	dir, err := post[types.FsDir](ctx, c, "/read_dir", map[string]string{"path": path})
	if err != nil {
		return types.FsDir{}, debugerrors.FileMissing(path, err)
	}
	return dir, nil
}

// LastModified returns the modification time of path in unix seconds.
func (c *Client) LastModified(ctx context.Context, path string) (float64, error) {
	q := url.Values{"path": {path}}
	res, err := get[struct {
		LastModified float64 `json:"last_modified_unix_sec"`
	}](ctx, c, "/get_last_modified_unix_sec?"+q.Encode())
	if err != nil {
		return 0, debugerrors.FileMissing(path, err)
	}
	return res.LastModified, nil
}

// SendSignal asks the backend to deliver signal to pid and returns the
// backend's confirmation message.
func (c *Client) SendSignal(ctx context.Context, signal string, pid int) (string, error) {
	q := url.Values{"signal_name": {signal}, "pid": {strconv.Itoa(pid)}}
	res, err := get[struct {
		Message string `json:"message"`
	}](ctx, c, "/send_signal_to_pid?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("send %s to %d: %w", signal, pid, err)
	}
	return res.Message, nil
}

func post[R any](ctx context.Context, c *Client, path string, args any) (R, error) {
	var empty R
	body, err := json.Marshal(args)
	if err != nil {
		return empty, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return empty, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do[R](c, req)
}

func get[R any](ctx context.Context, c *Client, path string) (R, error) {
	var empty R
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return empty, err
	}
	return do[R](c, req)
}

func do[R any](c *Client, req *http.Request) (R, error) {
	var result R
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	glog.V(2).Infof("[http]%s %s", req.Method, req.URL.Path)
	r, err := c.HTTP.Do(req)
	if err != nil {
		return result, err
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return result, err
	}
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		// the backend reports failures as {"message": ...}
		if msg := gjson.GetBytes(body, "message"); msg.Exists() {
			return result, fmt.Errorf("%s", msg.String())
		}
		return result, fmt.Errorf("%s (%d error)", http.StatusText(r.StatusCode), r.StatusCode)
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return result, nil
}
