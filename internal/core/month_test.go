package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseMonthKey(t *testing.T) {
	for _, ok := range []string{"2024-01", "1999-12"} {
		if _, err := ParseMonthKey(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"2024-1", "2024-13", "24-01", "2024/01", ""} {
		if _, err := ParseMonthKey(bad); err == nil {
			t.Errorf("%q expected error", bad)
		}
	}
}

func TestMonthKeyArithmetic(t *testing.T) {
	k := MonthKey("2024-12")
	if got := k.Add(1); got != "2025-01" {
		t.Fatalf("Add(1) = %s", got)
	}
	if got := k.Add(-12); got != "2023-12" {
		t.Fatalf("Add(-12) = %s", got)
	}
	if k.FirstDay() != "2024-12-01" {
		t.Fatalf("FirstDay = %s", k.FirstDay())
	}
	if MonthKeyOf(time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)) != "2024-03" {
		t.Fatalf("MonthKeyOf mismatch")
	}
	if !(MonthKey("2023-12") < MonthKey("2024-01")) {
		t.Fatalf("keys must sort chronologically")
	}
}

func TestViewJSON(t *testing.T) {
	cases := []struct {
		in   string
		want View
		out  string
	}{
		{`"all"`, AllAccounts(), `"all"`},
		{`2`, AccountView(2), `2`},
		{`"3"`, AccountView(3), `3`},
		{`null`, AllAccounts(), `"all"`},
	}
	for _, tc := range cases {
		var v View
		if err := json.Unmarshal([]byte(tc.in), &v); err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if v != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.in, v, tc.want)
		}
		b, _ := json.Marshal(v)
		if string(b) != tc.out {
			t.Errorf("%s: marshal = %s", tc.in, b)
		}
	}
	var v View
	if err := json.Unmarshal([]byte(`-1`), &v); err == nil {
		t.Fatalf("negative id should be rejected")
	}
}
