package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "SerializationFailure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "DeadlockDetected", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "LockNotAvailable", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "UniqueViolation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "WrappedDeadlock", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"}), want: true},
		{name: "PlainError", err: errors.New("boom"), want: false},
		{name: "Nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
