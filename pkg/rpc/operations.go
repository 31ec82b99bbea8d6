package rpc

import (
	"context"
	"encoding/json"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
)

// Operation runs one node query on behalf of a remote subscriber.
type Operation func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Params are the request fields understood by the proxied operations.
type Params struct {
	Hash   string `json:"hash,omitempty"`
	Height int64  `json:"height,omitempty"`
}

// Operations builds the proxy table for c. The names are the inbound message
// names accepted by the telemetry channel.
func Operations(c Capabilities) map[string]Operation {
	return map[string]Operation{
		"status": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return c.Status(ctx)
		},
		"height": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return c.Height(ctx)
		},
		"fee": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return c.Fee(ctx)
		},
		"peers": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return c.Peers(ctx)
		},
		"lastBlockHeader": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return c.LastBlockHeader(ctx)
		},
		"blockHeaderByHash": withHash(func(ctx context.Context, hash string) (interface{}, error) {
			return c.BlockHeaderByHash(ctx, hash)
		}),
		"blockHeaderByHeight": func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			p, err := decodeParams(raw)
			if err != nil {
				return nil, err
			}
			return c.BlockHeaderByHeight(ctx, p.Height)
		},
		"block": withHash(func(ctx context.Context, hash string) (interface{}, error) {
			return c.Block(ctx, hash)
		}),
		"blocks": func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			p, err := decodeParams(raw)
			if err != nil {
				return nil, err
			}
			return c.Blocks(ctx, p.Height)
		},
		"transaction": withHash(func(ctx context.Context, hash string) (interface{}, error) {
			return c.Transaction(ctx, hash)
		}),
		"transactionPool": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return c.TransactionPool(ctx)
		},
		"blockCount": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return c.BlockCount(ctx)
		},
	}
}

func withHash(fn func(ctx context.Context, hash string) (interface{}, error)) Operation {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		p, err := decodeParams(raw)
		if err != nil {
			return nil, err
		}
		if p.Hash == "" {
			return nil, errors.NewValidationError("hash is required", nil)
		}
		return fn(ctx, p.Hash)
	}
}

func decodeParams(raw json.RawMessage) (Params, error) {
	var p Params
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, errors.NewValidationError("invalid request parameters", err)
	}
	return p, nil
}
