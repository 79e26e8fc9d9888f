package backend

import "testing"

func TestContainerName(t *testing.T) {
	got := containerName(42)
	want := "workload-42"
	if got != want {
		t.Errorf("containerName(42) = %q, want %q", got, want)
	}
}
