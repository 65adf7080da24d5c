package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{
		Host:     "localhost",
		Port:     5432,
		User:     "classroom",
		Password: "secret",
		DBName:   "classroom",
		SSLMode:  "disable",
	}

	want := "host=localhost port=5432 user=classroom password=secret dbname=classroom sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pending := &pq.Error{Code: pqUniqueViolation, Constraint: pendingInvitationIndex}
	other := &pq.Error{Code: pqUniqueViolation, Constraint: "memberships_learner_course_key"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil error", err: nil, constraint: "", want: false},
		{name: "plain error", err: errors.New("boom"), constraint: "", want: false},
		{name: "any unique violation", err: other, constraint: "", want: true},
		{name: "matching constraint", err: pending, constraint: pendingInvitationIndex, want: true},
		{name: "wrapped matching constraint", err: fmt.Errorf("insert: %w", pending), constraint: pendingInvitationIndex, want: true},
		{name: "different constraint", err: other, constraint: pendingInvitationIndex, want: false},
		{name: "foreign key violation", err: &pq.Error{Code: "23503"}, constraint: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestAffected(t *testing.T) {
	tests := []struct {
		rows int64
		want bool
	}{
		{rows: 0, want: false},
		{rows: 1, want: true},
		{rows: 3, want: true},
	}

	for _, tt := range tests {
		got, err := affected(fakeResult(tt.rows))
		if err != nil {
			t.Fatalf("affected(%d) error = %v", tt.rows, err)
		}
		if got != tt.want {
			t.Errorf("affected(%d) = %v, want %v", tt.rows, got, tt.want)
		}
	}
}
