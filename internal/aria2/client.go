// Package aria2 talks to an aria2 download daemon over its JSON-RPC interface.
package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/transfer"
)

const (
	methodAddURI               = "aria2.addUri"
	methodTellStatus           = "aria2.tellStatus"
	methodRemove               = "aria2.remove"
	methodRemoveDownloadResult = "aria2.removeDownloadResult"
	methodGetGlobalStat        = "aria2.getGlobalStat"
	methodGetVersion           = "aria2.getVersion"
)

var statusKeys = []string{
	"gid", "status", "totalLength", "completedLength", "downloadSpeed",
	"errorCode", "errorMessage", "dir", "files",
}

// Client is a JSON-RPC client for one aria2 endpoint. It holds no per-job state
// and is safe for concurrent use.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// Ensure Client implements transfer.Daemon.
var _ transfer.Daemon = (*Client)(nil)

// NewClient creates a client for endpoint, e.g. http://localhost:6800/jsonrpc.
func NewClient(endpoint, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: httpClient,
	}
}

// Endpoint returns the RPC URL the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one RPC round trip and decodes the result into out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, out any, params ...any) error {
	logger := logctx.LoggerFromContext(ctx).With("method", method)

	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}

	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(c.nextID.Add(1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transfer.NetworkError{Operation: method, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transfer.NetworkError{Operation: method, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	// aria2 answers RPC-level errors with a non-200 status and a JSON error body,
	// so decode before looking at the status code.
	var rpcResp rpcResponse
	if decodeErr := json.Unmarshal(raw, &rpcResp); decodeErr != nil {
		if resp.StatusCode != http.StatusOK {
			logger.Debug("non-200 response", "status", resp.StatusCode, "body", string(raw))

			return &transfer.NetworkError{Operation: method, StatusCode: resp.StatusCode, Message: string(raw)}
		}

		return &transfer.NetworkError{Operation: method, StatusCode: resp.StatusCode, Message: "invalid JSON-RPC response", Err: decodeErr}
	}

	if rpcResp.Error != nil {
		daemonErr := &transfer.DaemonError{Method: method, Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
		if strings.EqualFold(rpcResp.Error.Message, "Unauthorized") {
			return &transfer.AuthenticationError{Operation: method, Err: daemonErr}
		}

		return daemonErr
	}

	if resp.StatusCode != http.StatusOK {
		return &transfer.NetworkError{Operation: method, StatusCode: resp.StatusCode, Message: string(raw)}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}

	return nil
}

// AddURI submits uri as a new job and returns its gid.
func (c *Client) AddURI(ctx context.Context, uri string, opts transfer.Options) (string, error) {
	var gid string
	if err := c.call(ctx, methodAddURI, &gid, []string{uri}, opts.Map()); err != nil {
		return "", err
	}

	logctx.LoggerFromContext(ctx).Debug("job added", "gid", gid, "uri", uri)

	return gid, nil
}

type statusReply struct {
	GID             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     string `json:"totalLength"`
	CompletedLength string `json:"completedLength"`
	DownloadSpeed   string `json:"downloadSpeed"`
	ErrorCode       string `json:"errorCode"`
	ErrorMessage    string `json:"errorMessage"`
	Dir             string `json:"dir"`
	Files           []struct {
		Path string `json:"path"`
		URIs []struct {
			URI    string `json:"uri"`
			Status string `json:"status"`
		} `json:"uris"`
	} `json:"files"`
}

func (s statusReply) toRecord() *transfer.Record {
	rec := &transfer.Record{
		GID:            s.GID,
		Status:         transfer.Status(s.Status),
		TotalBytes:     parseInt(s.TotalLength),
		CompletedBytes: parseInt(s.CompletedLength),
		DownloadSpeed:  parseInt(s.DownloadSpeed),
		ErrorCode:      s.ErrorCode,
		ErrorMessage:   s.ErrorMessage,
	}

	if len(s.Files) > 0 {
		rec.Path = s.Files[0].Path

		if len(s.Files[0].URIs) > 0 {
			rec.URL = s.Files[0].URIs[0].URI
		}
	}

	return rec
}

// Status returns the daemon's current view of gid.
func (c *Client) Status(ctx context.Context, gid string) (*transfer.Record, error) {
	var reply statusReply
	if err := c.call(ctx, methodTellStatus, &reply, gid, statusKeys); err != nil {
		return nil, err
	}

	return reply.toRecord(), nil
}

// Remove stops gid and purges it from the result list. A job that already stopped
// cannot be removed, only purged, so the purge is always attempted.
func (c *Client) Remove(ctx context.Context, gid string) error {
	removeErr := c.call(ctx, methodRemove, nil, gid)

	if err := c.call(ctx, methodRemoveDownloadResult, nil, gid); err != nil {
		logctx.LoggerFromContext(ctx).Debug("failed to purge download result", "gid", gid, "err", err)

		if removeErr != nil {
			return removeErr
		}
	}

	if removeErr != nil && !errors.Is(removeErr, transfer.ErrJobNotFound) {
		return removeErr
	}

	return nil
}

type globalStatReply struct {
	DownloadSpeed string `json:"downloadSpeed"`
	NumActive     string `json:"numActive"`
	NumWaiting    string `json:"numWaiting"`
	NumStopped    string `json:"numStopped"`
}

// Stats returns the daemon's global statistics.
func (c *Client) Stats(ctx context.Context) (*transfer.Stats, error) {
	var reply globalStatReply
	if err := c.call(ctx, methodGetGlobalStat, &reply); err != nil {
		return nil, err
	}

	return &transfer.Stats{
		DownloadSpeed: parseInt(reply.DownloadSpeed),
		NumActive:     int(parseInt(reply.NumActive)),
		NumWaiting:    int(parseInt(reply.NumWaiting)),
		NumStopped:    int(parseInt(reply.NumStopped)),
	}, nil
}

// VersionInfo is the reply of aria2.getVersion.
type VersionInfo struct {
	Version         string   `json:"version"`
	EnabledFeatures []string `json:"enabledFeatures"`
}

// Version returns the daemon version and its compiled-in features.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	if err := c.call(ctx, methodGetVersion, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// parseInt reads aria2's string-encoded integers; garbage reads as zero.
func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return n
}
