package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolationOn(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		table string
		want  bool
	}{
		{
			name:  "hash_collision_on_sample",
			err:   &pgconn.PgError{Code: "23505", TableName: "sample", ConstraintName: "idx_sample_hash_sha256"},
			table: "sample",
			want:  true,
		},
		{
			name:  "wrapped_error_still_matches",
			err:   fmt.Errorf("creating sample: %w", &pgconn.PgError{Code: "23505", TableName: "sample"}),
			table: "sample",
			want:  true,
		},
		{
			name:  "link_table_violation_is_not_a_hash_collision",
			err:   &pgconn.PgError{Code: "23505", TableName: "sample_has_tag", ConstraintName: "sample_has_tag_pkey"},
			table: "sample",
			want:  false,
		},
		{
			name:  "other_constraint_class",
			err:   &pgconn.PgError{Code: "23503", TableName: "sample"},
			table: "sample",
			want:  false,
		},
		{
			name:  "not_a_pg_error",
			err:   errors.New("connection reset"),
			table: "sample",
			want:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolationOn(tc.err, tc.table); got != tc.want {
				t.Fatalf("IsUniqueViolationOn(%v, %q) = %v, want %v", tc.err, tc.table, got, tc.want)
			}
		})
	}
}
