package version

import "testing"

func TestString(t *testing.T) {
	orig := [3]string{Version, Commit, BuildTime}
	t.Cleanup(func() { Version, Commit, BuildTime = orig[0], orig[1], orig[2] })

	Version, Commit, BuildTime = "1.2.0", "abc1234", "2026-10-18T09:00:00Z"

	if got, want := String(), "1.2.0 (abc1234) built 2026-10-18T09:00:00Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	info := Info()
	if info["version"] != "1.2.0" || info["commit"] != "abc1234" || info["build_time"] != "2026-10-18T09:00:00Z" {
		t.Errorf("Info() = %v", info)
	}
}
