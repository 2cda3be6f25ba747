package live

import "testing"

func TestIndexAssigner_sequential(t *testing.T) {
	var a IndexAssigner
	for want := int64(0); want < 100; want++ {
		if got := a.Next(); got != want {
			t.Fatalf("Next: got %d want %d", got, want)
		}
	}
}

func TestIndexAssigner_reset(t *testing.T) {
	var a IndexAssigner
	a.Next()
	a.Next()
	a.Reset()
	if got := a.Next(); got != 0 {
		t.Errorf("Next after Reset: got %d want 0", got)
	}
}
