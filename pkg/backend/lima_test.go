//go:build darwin

package backend

import "testing"

func TestLimaInstanceName(t *testing.T) {
	got := limaInstanceName(7)
	want := "podlease-7"
	if got != want {
		t.Errorf("limaInstanceName(7) = %q, want %q", got, want)
	}
}
