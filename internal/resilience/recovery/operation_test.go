package recovery

import (
	"testing"
	"time"

	"batch-collector/internal/resilience/failure"
)

func TestFetchOperation_AdjustForFailure(t *testing.T) {
	tests := []struct {
		name         string
		op           FetchOperation
		category     failure.Category
		wantPageSize int
		wantTimeout  time.Duration
	}{
		{"rate limited halves page size", FetchOperation{PageSize: 100, Timeout: 10 * time.Second}, failure.RateLimited, 50, 10 * time.Second},
		{"page size floors at 1", FetchOperation{PageSize: 1, Timeout: 10 * time.Second}, failure.RateLimited, 1, 10 * time.Second},
		{"odd page size rounds down", FetchOperation{PageSize: 3}, failure.RateLimited, 1, 0},
		{"timeout grows 1.5x", FetchOperation{PageSize: 10, Timeout: 10 * time.Second}, failure.NetworkTimeout, 10, 15 * time.Second},
		{"timeout capped at 60s", FetchOperation{PageSize: 10, Timeout: 50 * time.Second}, failure.NetworkTimeout, 10, 60 * time.Second},
		{"auth leaves operation alone", FetchOperation{PageSize: 10, Timeout: 10 * time.Second}, failure.AuthFailure, 10, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op.AdjustForFailure(tt.category).(FetchOperation)
			if got.PageSize != tt.wantPageSize {
				t.Errorf("expected page size %d, got %d", tt.wantPageSize, got.PageSize)
			}
			if got.Timeout != tt.wantTimeout {
				t.Errorf("expected timeout %v, got %v", tt.wantTimeout, got.Timeout)
			}
		})
	}
}

func TestOperation_AdjustDoesNotMutateOriginal(t *testing.T) {
	op := FetchOperation{PageSize: 100, Timeout: 10 * time.Second}
	_ = op.AdjustForFailure(failure.RateLimited)
	_ = op.WithAttempt(4)

	if op.PageSize != 100 || op.Attempt() != 0 {
		t.Errorf("original operation was mutated: %+v", op)
	}
}

func TestOperation_Identity(t *testing.T) {
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		op       Operation
		wantID   string
		wantKind Kind
	}{
		{"fetch", FetchOperation{SourceID: "dart", Date: day}, "dart:2024-01-09", KindDataCollection},
		{"api call", APICallOperation{Upstream: "bok", Endpoint: "/rates"}, "bok/rates", KindAPICall},
		{"store", StoreOperation{Table: "raw_payloads"}, "raw_payloads", KindDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.op.ID() != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, tt.op.ID())
			}
			if tt.op.Kind() != tt.wantKind {
				t.Errorf("expected kind %v, got %v", tt.wantKind, tt.op.Kind())
			}
			if tt.op.Attempt() != 0 {
				t.Errorf("expected attempt 0, got %d", tt.op.Attempt())
			}
			next := tt.op.WithAttempt(2)
			if next.Attempt() != 2 || next.ID() != tt.wantID {
				t.Errorf("unexpected copy %+v", next)
			}
		})
	}
}

func TestStoreOperation_AdjustForFailure(t *testing.T) {
	op := StoreOperation{Table: "raw_payloads", BatchSize: 500}

	got := op.AdjustForFailure(failure.RateLimited).(StoreOperation)
	if got.BatchSize != 250 {
		t.Errorf("expected batch size 250, got %d", got.BatchSize)
	}
	got = op.AdjustForFailure(failure.NetworkTimeout).(StoreOperation)
	if got.BatchSize != 500 {
		t.Errorf("expected batch size unchanged, got %d", got.BatchSize)
	}
}

func TestAPICallOperation_AdjustForFailure(t *testing.T) {
	op := APICallOperation{Upstream: "bok", Endpoint: "/rates", Timeout: 20 * time.Second}

	got := op.AdjustForFailure(failure.NetworkTimeout).(APICallOperation)
	if got.Timeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", got.Timeout)
	}
	if KeyOf(got).String() != "api_call:bok/rates" {
		t.Errorf("unexpected key %q", KeyOf(got).String())
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2, JitterFraction: 0.1}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, c := range cases {
		if got := p.Backoff(c.attempt, nil); got != c.want {
			t.Errorf("attempt %d: expected %v, got %v", c.attempt, c.want, got)
		}
	}

	maxJitter := func() float64 { return 0.999 }
	if got := p.Backoff(1, maxJitter); got < time.Second || got > 1100*time.Millisecond {
		t.Errorf("expected jittered delay within 10%%, got %v", got)
	}
}

func TestPolicy_BackoffDefaultJitter(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
	half := func() float64 { return 0.5 }

	if got := p.Backoff(1, half); got != 1050*time.Millisecond {
		t.Errorf("unset jitter fraction: expected 1.05s, got %v", got)
	}
	if got := p.Backoff(2, half); got != 2100*time.Millisecond {
		t.Errorf("unset jitter fraction: expected 2.1s, got %v", got)
	}

	p.JitterFraction = -1
	if got := p.Backoff(1, half); got != time.Second {
		t.Errorf("negative jitter fraction: expected no jitter, got %v", got)
	}
}

func TestPolicyFor(t *testing.T) {
	if PolicyFor(KindAPICall).MaxAttempts != 3 {
		t.Error("api_call policy should allow 3 attempts")
	}
	if PolicyFor(KindDatabase).Multiplier != 1.5 {
		t.Error("database policy should grow by 1.5")
	}
	if PolicyFor("something-else").MaxAttempts != 5 {
		t.Error("unknown kinds fall back to data_collection")
	}
}
