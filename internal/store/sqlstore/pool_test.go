package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestInitPoolPings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectPing()

	got, err := InitPool(context.Background(), db, PoolConfig{MaxOpenConns: 3, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Fatalf("InitPool() error = %v", err)
	}
	if stats := got.Stats(); stats.MaxOpenConnections != 3 {
		t.Fatalf("MaxOpenConnections = %d", stats.MaxOpenConnections)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInitPoolClosesOnPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	if _, err := InitPool(context.Background(), db, PoolConfig{PingTimeout: time.Second}); err == nil {
		t.Fatal("expected ping error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
