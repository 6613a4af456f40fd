package models

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2026-03-09", " 2026-03-09 ", "2026-03-09T18:30:00+05:30"} {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q) error = %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "09/03/2026", "2026-13-01"} {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("ParseDate(%q) error = nil, want error", in)
		}
	}
}

func TestBranchKey(t *testing.T) {
	if BranchKey("  Kochi ") != "kochi" {
		t.Errorf("BranchKey = %q", BranchKey("  Kochi "))
	}
}

func TestUserRoleIs(t *testing.T) {
	if !UserRole("Accountant").Is(RoleAccountant) {
		t.Error("role comparison should ignore case")
	}
	if UserRole("auditor").Valid() {
		t.Error("auditor should not be a valid role")
	}
	if !UserRole("ADMIN").CanVerify() || !RoleAccountant.CanVerify() || RoleStaff.CanVerify() {
		t.Error("only admins and accountants verify")
	}
}
