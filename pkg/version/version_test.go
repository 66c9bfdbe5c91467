package version

import "testing"

func TestInjectedValues(t *testing.T) {
	oldTag, oldCommit, oldDate := tag, commit, date
	t.Cleanup(func() { tag, commit, date = oldTag, oldCommit, oldDate })

	// Make sure the build info fallback has already run.
	_ = String()

	tag, commit, date = "v1.2.0", "abc1234", "2026-10-01"
	if got := String(); got != "v1.2.0" {
		t.Errorf("String() = %q", got)
	}
	if got := Full(); got != "v1.2.0 (abc1234) built 2026-10-01" {
		t.Errorf("Full() = %q", got)
	}

	tag = ""
	if got := String(); got != "abc1234" {
		t.Errorf("String() without tag = %q", got)
	}

	commit, date = "", ""
	if got := String(); got != "dev" {
		t.Errorf("String() dev build = %q", got)
	}
	if got := Commit(); got != "unknown" {
		t.Errorf("Commit() = %q", got)
	}
	if got := Date(); got != "unknown" {
		t.Errorf("Date() = %q", got)
	}
}
