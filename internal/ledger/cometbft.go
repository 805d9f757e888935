package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
)

// CometClient submits version entries to a CometBFT-backed ledger node and
// queries the application for the latest committed entry per record.
type CometClient struct {
	rpc    rpcclient.Client
	logger cmtlog.Logger
}

// NewCometClient connects to a ledger node's RPC endpoint.
func NewCometClient(rpcAddr string, logger cmtlog.Logger) (*CometClient, error) {
	httpClient, err := cmthttp.NewWithClient(rpcAddr, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger RPC client: %w", err)
	}
	if err := httpClient.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ledger RPC client: %w", err)
	}
	logger.Info("Connected to ledger RPC", "address", rpcAddr)
	return &CometClient{rpc: httpClient, logger: logger}, nil
}

// NewCometClientWith wraps an existing RPC client (e.g. a local in-process
// node client).
func NewCometClientWith(rpc rpcclient.Client, logger cmtlog.Logger) *CometClient {
	return &CometClient{rpc: rpc, logger: logger}
}

// Stop shuts down the underlying RPC client if it runs background
// machinery, such as the websocket event listener of the HTTP client.
func (c *CometClient) Stop() error {
	if svc, ok := c.rpc.(interface{ Stop() error }); ok {
		return svc.Stop()
	}
	return nil
}

func (c *CometClient) Submit(ctx context.Context, entry Entry) (string, error) {
	// Idempotency check first: a retried commit after a timeout may have
	// landed. If the latest entry already covers this sequence with the
	// same content, return its tx id instead of resubmitting.
	latest, err := c.GetLatest(ctx, entry.RecordID)
	if err != nil && !bolerr.IsNotFound(err) {
		return "", err
	}
	if latest != nil {
		if latest.Sequence == entry.Sequence && payloadDigest(latest.Entry) == payloadDigest(entry) {
			return latest.TxID, nil
		}
		if latest.Sequence >= entry.Sequence {
			return "", &bolerr.InvalidStateError{
				Op:      "ledger submit",
				ID:      entry.RecordID,
				Message: fmt.Sprintf("sequence %d already committed with different content", entry.Sequence),
			}
		}
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return "", &bolerr.StorageFailure{Store: "ledger", Op: "marshal", Err: err}
	}
	tx := cmttypes.Tx(raw)

	// Run the broadcast in a goroutine so a context deadline is honored
	// even if the RPC call itself blocks.
	type broadcastResult struct {
		result *cmtrpctypes.ResultBroadcastTxCommit
		err    error
	}
	done := make(chan broadcastResult, 1)
	go func() {
		result, err := c.rpc.BroadcastTxCommit(ctx, tx)
		done <- broadcastResult{result, err}
	}()

	select {
	case <-ctx.Done():
		// The commit may still land; the caller retries with the same
		// (record, sequence) key and dedupes above.
		return "", &bolerr.StorageFailure{Store: "ledger", Op: "submit", Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return "", &bolerr.StorageFailure{Store: "ledger", Op: "submit", Err: res.err}
		}
		if res.result.CheckTx.Code != 0 {
			return "", &bolerr.InvalidStateError{
				Op:      "ledger submit",
				ID:      entry.RecordID,
				Message: fmt.Sprintf("ledger rejected transaction, CheckTx code %d", res.result.CheckTx.Code),
			}
		}
		return hex.EncodeToString(res.result.Hash), nil
	}
}

func (c *CometClient) GetLatest(ctx context.Context, recordID string) (*CommittedEntry, error) {
	res, err := c.rpc.ABCIQuery(ctx, "/latest", []byte(recordID))
	if err != nil {
		return nil, &bolerr.StorageFailure{Store: "ledger", Op: "get latest", Err: err}
	}
	if res.Response.Code != 0 || len(res.Response.Value) == 0 {
		return nil, &bolerr.NotFoundError{Kind: "ledger record", ID: recordID}
	}
	var entry CommittedEntry
	if err := json.Unmarshal(res.Response.Value, &entry); err != nil {
		return nil, &bolerr.StorageFailure{Store: "ledger", Op: "decode latest", Err: err}
	}
	return &entry, nil
}
