package armcond

import "testing"

func TestNegateIsInvolution(t *testing.T) {
	for c := EQ; c <= LE; c++ {
		if got := c.Negate().Negate(); got != c {
			t.Errorf("%s.Negate().Negate() = %s, want %s", c, got, c)
		}
		if c.Negate() == c {
			t.Errorf("%s.Negate() returned itself", c)
		}
	}
}

func TestNegateALandNV(t *testing.T) {
	if AL.Negate() != AL {
		t.Errorf("AL.Negate() = %s, want AL", AL.Negate())
	}
	if NV.Negate() != NV {
		t.Errorf("NV.Negate() = %s, want NV", NV.Negate())
	}
}

func TestAlwaysTrue(t *testing.T) {
	if !AL.AlwaysTrue() || !NV.AlwaysTrue() {
		t.Error("AL and NV must be AlwaysTrue")
	}
	for _, c := range []Code{EQ, NE, CS, CC, MI, PL, VS, VC, HI, LS, GE, LT, GT, LE} {
		if c.AlwaysTrue() {
			t.Errorf("%s must not be AlwaysTrue", c)
		}
	}
}

func TestStringKnownAndUnknown(t *testing.T) {
	if EQ.String() != "EQ" {
		t.Errorf("EQ.String() = %q", EQ.String())
	}
	if got := Code(255).String(); got != "??" {
		t.Errorf("Code(255).String() = %q, want \"??\"", got)
	}
}
