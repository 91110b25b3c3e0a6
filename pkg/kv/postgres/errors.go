package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leafsii/relkv/pkg/kv"
)

// SQLSTATE codes the adapter translates.
const (
	codeInvalidTextRepresentation = "22P02"
	codeNumericValueOutOfRange    = "22003"
	codeAdminShutdown             = "57P01"
	codeCannotConnectNow          = "57P03"
)

// IsConnectionError checks if an error means the server could not be reached
// or the connection was lost.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation by caller is not a backend failure
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == codeAdminShutdown ||
			pgErr.Code == codeCannotConnectNow
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	if pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// mapError translates driver errors into the kv error taxonomy. Errors that
// are already kv errors pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kv.ErrWrongType) || errors.Is(err, kv.ErrNotNumber) || errors.Is(err, kv.ErrBackendUnavailable) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInvalidTextRepresentation, codeNumericValueOutOfRange:
			return fmt.Errorf("%w: %s", kv.ErrNotNumber, pgErr.Message)
		}
	}

	if IsConnectionError(err) {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return err
}
