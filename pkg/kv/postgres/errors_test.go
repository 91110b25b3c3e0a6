package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leafsii/relkv/pkg/kv"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"invalid numeric text", &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type numeric: "abc"`}, kv.ErrNotNumber},
		{"numeric overflow", &pgconn.PgError{Code: "22003"}, kv.ErrNotNumber},
		{"connection failure", &pgconn.PgError{Code: "08006"}, kv.ErrBackendUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, kv.ErrBackendUnavailable},
		{"eof", fmt.Errorf("failed to get string: %w", io.ErrUnexpectedEOF), kv.ErrBackendUnavailable},
		{"type conflict", &kv.TypeConflictError{Key: "k", Want: kv.KindSet, Have: kv.KindList}, kv.ErrWrongType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, mapError(nil))

	other := &pgconn.PgError{Code: "42P01"}
	assert.Same(t, error(other), mapError(other))
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(context.Canceled))
	assert.False(t, IsConnectionError(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.False(t, IsConnectionError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsConnectionError(errors.New("syntax error")))
	assert.True(t, IsConnectionError(&pgconn.PgError{Code: "57P03"}))
	assert.True(t, IsConnectionError(io.EOF))
}

func TestNewTracer(t *testing.T) {
	_, err := newTracer(nil, "loud")
	assert.Error(t, err)

	for _, level := range []string{"trace", "debug", "info", "warn", "error", "none"} {
		tracer, err := newTracer(nil, level)
		assert.NoError(t, err, level)
		assert.NotNil(t, tracer)
	}
}
