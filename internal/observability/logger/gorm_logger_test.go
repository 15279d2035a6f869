package logger

import "testing"

func TestDescribeStatement(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		locking   bool
	}{
		{"SELECT * FROM tax_accounts WHERE id = ? FOR UPDATE", "SELECT", true},
		{"  update payment_requests set state = ?", "UPDATE", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", "SELECT", false},
		{"SET LOCAL lock_timeout = '3000ms'", "SET", false},
		{"", "UNKNOWN", false},
	}
	for _, tc := range cases {
		got := describeStatement(tc.sql)
		if got.operation != tc.operation || got.locking != tc.locking {
			t.Fatalf("describeStatement(%q) = %+v", tc.sql, got)
		}
	}
}
