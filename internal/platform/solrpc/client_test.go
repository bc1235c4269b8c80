package solrpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solbot/internal/domain"
)

const testMint = domain.TokenIdentifier("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// newRPCServer answers each JSON-RPC method with the given result payload.
func newRPCServer(t *testing.T, results map[string]string) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu     sync.Mutex
		called []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		called = append(called, req.Method)
		mu.Unlock()

		result, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &called
}

func TestClient_TopHolders(t *testing.T) {
	srv, called := newRPCServer(t, map[string]string{
		"getTokenSupply": `{"context":{"slot":1},"value":{"amount":"1000000","decimals":6,"uiAmount":1,"uiAmountString":"1"}}`,
		"getTokenLargestAccounts": `{"context":{"slot":1},"value":[
			{"address":"So11111111111111111111111111111111111111112","amount":"90000","decimals":6,"uiAmount":0.09,"uiAmountString":"0.09"},
			{"address":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","amount":"50000","decimals":6,"uiAmount":0.05,"uiAmountString":"0.05"}
		]}`,
	})

	c := New(srv.URL)
	dist, err := c.TopHolders(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, "1000000", dist.Supply.String())
	require.Len(t, dist.Holders, 2)
	assert.Equal(t, "90000", dist.Holders[0].String())
	assert.Equal(t, "50000", dist.Holders[1].String())
	assert.ElementsMatch(t, []string{"getTokenSupply", "getTokenLargestAccounts"}, *called)
}

func TestClient_TopHolders_RPCError(t *testing.T) {
	srv, _ := newRPCServer(t, map[string]string{})

	_, err := New(srv.URL).TopHolders(context.Background(), testMint)
	assert.Error(t, err)
}

func signedTestTransaction(t *testing.T) string {
	t.Helper()
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	ix := solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.Meta(payer.PublicKey()).SIGNER().WRITE()},
		[]byte("probe"),
	)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeTransaction(t *testing.T) {
	tx, err := DecodeTransaction(signedTestTransaction(t))
	require.NoError(t, err)
	assert.Len(t, tx.Signatures, 1)

	_, err = DecodeTransaction("%%%")
	assert.Error(t, err)
}

func TestClient_SimulateSwap(t *testing.T) {
	tx, err := DecodeTransaction(signedTestTransaction(t))
	require.NoError(t, err)

	t.Run("program error", func(t *testing.T) {
		srv, _ := newRPCServer(t, map[string]string{
			"simulateTransaction": `{"context":{"slot":1},"value":{"err":{"InstructionError":[0,{"Custom":6001}]},"logs":["Program log: sell disabled"]}}`,
		})
		res, err := New(srv.URL, WithSwapTransaction(tx)).SimulateSwap(context.Background(), testMint)
		require.NoError(t, err)
		assert.True(t, res.Failed)
		assert.NotEmpty(t, res.Reason)
		assert.Equal(t, []string{"Program log: sell disabled"}, res.Logs)
	})

	t.Run("clean run", func(t *testing.T) {
		srv, _ := newRPCServer(t, map[string]string{
			"simulateTransaction": `{"context":{"slot":1},"value":{"err":null,"logs":["Program log: ok"]}}`,
		})
		res, err := New(srv.URL, WithSwapTransaction(tx)).SimulateSwap(context.Background(), testMint)
		require.NoError(t, err)
		assert.False(t, res.Failed)
	})

	t.Run("not configured", func(t *testing.T) {
		c := New("http://127.0.0.1:1")
		assert.False(t, c.HasSwapTransaction())
		_, err := c.SimulateSwap(context.Background(), testMint)
		assert.Error(t, err)
	})
}
