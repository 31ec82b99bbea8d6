package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
)

// Capabilities is the set of node queries the supervisor relies on.
type Capabilities interface {
	Status(ctx context.Context) (*Info, error)
	Height(ctx context.Context) (*HeightInfo, error)
	Fee(ctx context.Context) (*FeeInfo, error)
	Peers(ctx context.Context) (*PeerList, error)
	LastBlockHeader(ctx context.Context) (*BlockHeader, error)
	BlockHeaderByHash(ctx context.Context, hash string) (*BlockHeader, error)
	BlockHeaderByHeight(ctx context.Context, height int64) (*BlockHeader, error)
	Block(ctx context.Context, hash string) (Document, error)
	Blocks(ctx context.Context, height int64) (Document, error)
	Transaction(ctx context.Context, hash string) (Document, error)
	TransactionPool(ctx context.Context) (Document, error)
	BlockCount(ctx context.Context) (int64, error)
}

// Client talks to the node's HTTP and JSON-RPC control interface.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logging.Logger
	requestID  uint64
}

func NewClient(endpoint string, timeout time.Duration, logger logging.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

func (c *Client) Status(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.get(ctx, "/getinfo", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Height(ctx context.Context) (*HeightInfo, error) {
	var height HeightInfo
	if err := c.get(ctx, "/getheight", &height); err != nil {
		return nil, err
	}
	return &height, nil
}

func (c *Client) Fee(ctx context.Context) (*FeeInfo, error) {
	var fee FeeInfo
	if err := c.get(ctx, "/feeinfo", &fee); err != nil {
		return nil, err
	}
	return &fee, nil
}

func (c *Client) Peers(ctx context.Context) (*PeerList, error) {
	var peers PeerList
	if err := c.get(ctx, "/getpeers", &peers); err != nil {
		return nil, err
	}
	return &peers, nil
}

type blockHeaderResult struct {
	BlockHeader BlockHeader `json:"block_header"`
}

func (c *Client) LastBlockHeader(ctx context.Context) (*BlockHeader, error) {
	var result blockHeaderResult
	if err := c.call(ctx, "getlastblockheader", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result.BlockHeader, nil
}

func (c *Client) BlockHeaderByHash(ctx context.Context, hash string) (*BlockHeader, error) {
	var result blockHeaderResult
	if err := c.call(ctx, "getblockheaderbyhash", map[string]string{"hash": hash}, &result); err != nil {
		return nil, err
	}
	return &result.BlockHeader, nil
}

func (c *Client) BlockHeaderByHeight(ctx context.Context, height int64) (*BlockHeader, error) {
	var result blockHeaderResult
	if err := c.call(ctx, "getblockheaderbyheight", map[string]int64{"height": height}, &result); err != nil {
		return nil, err
	}
	return &result.BlockHeader, nil
}

func (c *Client) Block(ctx context.Context, hash string) (Document, error) {
	var result struct {
		Block Document `json:"block"`
	}
	if err := c.call(ctx, "f_block_json", map[string]string{"hash": hash}, &result); err != nil {
		return nil, err
	}
	return result.Block, nil
}

func (c *Client) Blocks(ctx context.Context, height int64) (Document, error) {
	var result Document
	if err := c.call(ctx, "f_blocks_list_json", map[string]int64{"height": height}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) Transaction(ctx context.Context, hash string) (Document, error) {
	var result Document
	if err := c.call(ctx, "f_transaction_json", map[string]string{"hash": hash}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) TransactionPool(ctx context.Context) (Document, error) {
	var result Document
	if err := c.call(ctx, "f_on_transactions_pool_json", struct{}{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) BlockCount(ctx context.Context) (int64, error) {
	var result struct {
		Count int64 `json:"count"`
	}
	if err := c.call(ctx, "getblockcount", struct{}{}, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return errors.NewInternalError("failed to create request", err).WithContext("path", path)
	}
	return c.do(req, path, out)
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(atomic.AddUint64(&c.requestID, 1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.NewInternalError("failed to encode json-rpc request", err).WithContext("method", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/json_rpc", bytes.NewReader(body))
	if err != nil {
		return errors.NewInternalError("failed to create request", err).WithContext("method", method)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp jsonRPCResponse
	if err := c.do(req, method, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.NewRPCError(resp.Error.Message, nil).
			WithContext("method", method).
			WithContext("code", resp.Error.Code)
	}
	if len(resp.Result) == 0 {
		return errors.NewRPCError("empty json-rpc result", nil).WithContext("method", method)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return errors.NewRPCError("failed to decode json-rpc result", err).WithContext("method", method)
	}
	return nil
}

func (c *Client) do(req *http.Request, operation string, out interface{}) error {
	c.logger.Debugf("Node request, operation: %s, url: %s", operation, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return errors.NewCancelledError("node request cancelled", err).WithContext("operation", operation)
		}
		return errors.NewNetworkError("node request failed", err).WithContext("operation", operation)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewNetworkError("failed to read node response", err).WithContext("operation", operation)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewRPCError(fmt.Sprintf("node returned HTTP %d", resp.StatusCode), nil).
			WithContext("operation", operation).
			WithContext("status_code", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewRPCError("failed to decode node response", err).WithContext("operation", operation)
	}
	return nil
}
