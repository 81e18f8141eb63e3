package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubGateway struct {
	result json.RawMessage
	err    error
	method string
}

func (g *stubGateway) Call(_ context.Context, _ uint64, method string, _ json.RawMessage) (json.RawMessage, error) {
	g.method = method
	return g.result, g.err
}

func TestDirectRelay(t *testing.T) {
	hash := common.HexToHash("0xabc")

	t.Run("accepted", func(t *testing.T) {
		raw, _ := json.Marshal(hash)
		gw := &stubGateway{result: raw}
		res, err := NewDirectRelay(gw).Submit(context.Background(), SubmitRequest{ChainID: 1, RawTx: []byte{0x02}})
		require.NoError(t, err)
		assert.Equal(t, "eth_sendRawTransaction", gw.method)
		assert.Equal(t, PushAccepted, res.PushStatus)
		require.NotNil(t, res.Hash)
		assert.Equal(t, hash, *res.Hash)
	})

	t.Run("node rejected", func(t *testing.T) {
		gw := &stubGateway{err: errno.Errno{Code: -32000, Message: "nonce too low"}}
		res, err := NewDirectRelay(gw).Submit(context.Background(), SubmitRequest{ChainID: 1})
		require.NoError(t, err)
		assert.True(t, res.Failed())
		assert.Equal(t, "nonce too low", res.Reason)
		assert.Nil(t, res.Hash)
	})

	t.Run("malformed hash", func(t *testing.T) {
		gw := &stubGateway{result: json.RawMessage(`42`)}
		_, err := NewDirectRelay(gw).Submit(context.Background(), SubmitRequest{ChainID: 1})
		assert.Error(t, err)
	})
}

func TestHTTPRelay(t *testing.T) {
	var got SubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/transactions":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"tracking_id":"trk-1","push_status":"accepted"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/transactions/trk-1":
			_, _ = w.Write([]byte(`{"hash":"0x00000000000000000000000000000000000000000000000000000000000000ff"}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	r := NewHTTPRelay(srv.URL+"/", time.Second)
	ctx := context.Background()

	res, err := r.Submit(ctx, SubmitRequest{ChainID: 56, Nonce: 3, RawTx: []byte{0x01, 0x02}})
	require.NoError(t, err)
	assert.Equal(t, "trk-1", res.TrackingID)
	assert.Nil(t, res.Hash)
	assert.False(t, res.Failed())
	assert.Equal(t, uint64(56), got.ChainID)
	assert.Equal(t, []byte{0x01, 0x02}, []byte(got.RawTx))

	st, err := r.Status(ctx, "trk-1")
	require.NoError(t, err)
	assert.Equal(t, "trk-1", st.TrackingID)
	require.NotNil(t, st.Hash)
	assert.Equal(t, common.HexToHash("0xff"), *st.Hash)

	_, err = r.Status(ctx, "unknown")
	assert.Error(t, err)
}

func TestHTTPRelayTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPRelay(url, time.Second).Submit(context.Background(), SubmitRequest{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestHTTPRelayRejectedPushIsLoggedAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"push_status":"failed","reason":"nonce too low"}`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	prev := logger.Log
	logger.Log = zap.New(core)
	defer func() { logger.Log = prev }()

	res, err := NewHTTPRelay(srv.URL, time.Second).Submit(context.Background(), SubmitRequest{ChainID: 1, Nonce: 4})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, "nonce too low", res.Reason)

	assert.Zero(t, logs.FilterMessage("relay accepted submission").Len())
	rejected := logs.FilterMessage("relay rejected submission").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.WarnLevel, rejected[0].Level)
}
