package protocol

import "testing"

func TestIsActKind(t *testing.T) {
	for _, k := range []string{ActPath, ActUse, ActBuy, ActPlatePut, ActPlateClear, ActPause, ActResume, ActReset} {
		if !IsActKind(k) {
			t.Fatalf("%q should be an ACT kind", k)
		}
	}
	for _, k := range []string{"", "PATH", "junk", "reset "} {
		if IsActKind(k) {
			t.Fatalf("%q should not be an ACT kind", k)
		}
	}
}
