package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNewDBCircuitBreaker(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	dcb := NewDBCircuitBreaker(db)

	if dcb.DB() != db {
		t.Error("expected db to be set")
	}
	if dcb.State() != StateClosed {
		t.Errorf("expected initial state to be closed, got %s", dcb.State())
	}
}

func TestDBCircuitBreaker_ExecContext_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	dcb := NewDBCircuitBreaker(db)
	mock.ExpectExec("INSERT INTO data_collection_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := dcb.ExecContext(context.Background(), "INSERT INTO data_collection_logs (source) VALUES ($1)", "dart")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Errorf("expected 1 row affected, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDBCircuitBreaker_QueryContext_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	dcb := NewDBCircuitBreaker(db)
	mock.ExpectQuery("SELECT status FROM batch_run_logs").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("SUCCESS"))

	rows, err := dcb.QueryContext(context.Background(), "SELECT status FROM batch_run_logs")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		t.Fatal("expected one row")
	}
	var status string
	if err := rows.Scan(&status); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if status != "SUCCESS" {
		t.Errorf("expected SUCCESS, got %s", status)
	}
}

func TestDBCircuitBreaker_OpensAfterFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	cfg := DBConfig()
	cfg.Timeout = time.Minute
	dcb := NewDBCircuitBreakerWithConfig(db, cfg)

	dbErr := errors.New("connection refused")
	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT").WillReturnError(dbErr)
	}

	for i := 0; i < 5; i++ {
		if _, err := dcb.ExecContext(context.Background(), "INSERT INTO raw_payloads VALUES ($1)", i); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	if dcb.State() != StateOpen {
		t.Fatalf("expected open after 5 failures, got %s", dcb.State())
	}

	// No expectation is registered: the call must not reach the driver.
	_, err = dcb.ExecContext(context.Background(), "INSERT INTO raw_payloads VALUES ($1)", 6)
	if !IsOpenError(err) {
		t.Errorf("expected open circuit error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
