package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leafsii/relkv/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "wrong_type", Outcome(&kv.TypeConflictError{Key: "k", Want: kv.KindSet, Have: kv.KindList}))
	assert.Equal(t, "not_number", Outcome(fmt.Errorf("%w: abc", kv.ErrNotNumber)))
	assert.Equal(t, "unavailable", Outcome(fmt.Errorf("%w: reset", kv.ErrBackendUnavailable)))
	assert.Equal(t, "canceled", Outcome(context.Canceled))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestServerExportsInstruments(t *testing.T) {
	m, handler, err := Setup("relkv-test")
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordTransaction(ctx, kv.BackendPostgres, "incr", 3*time.Millisecond, nil)
	m.RecordTypeConflict(ctx, kv.BackendPostgres, kv.KindHash)

	srv := httptest.NewServer(NewServer("", handler, func(context.Context) error { return nil }).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "relkv_tx_total")
	assert.Contains(t, string(body), `op="incr"`)
	assert.Contains(t, string(body), "relkv_type_conflicts_total")
}

func TestHealthz(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	ping := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return kv.ErrBackendUnavailable
	}

	srv := httptest.NewServer(NewServer("", http.NotFoundHandler(), ping).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
