package sync

import "testing"

func TestRaiseRunLevelRestoresOnLower(t *testing.T) {
	if got := CurrentRunLevel(); got != PassiveLevel {
		t.Fatalf("expected the initial runlevel to be PassiveLevel; got %d", got)
	}

	token := RaiseRunLevel(DispatchLevel)
	if got := CurrentRunLevel(); got != DispatchLevel {
		t.Fatalf("expected the runlevel to be raised to DispatchLevel; got %d", got)
	}
	if got := token.Previous(); got != PassiveLevel {
		t.Fatalf("expected the token to remember PassiveLevel; got %d", got)
	}

	token.Lower()
	if got := CurrentRunLevel(); got != PassiveLevel {
		t.Fatalf("expected Lower to restore PassiveLevel; got %d", got)
	}
}

func TestLowerIsIdempotent(t *testing.T) {
	defer RaiseRunLevel(PassiveLevel).Lower()

	token := RaiseRunLevel(ApcLevel)
	token.Lower()
	RaiseRunLevel(DispatchLevel)
	token.Lower()

	if got := CurrentRunLevel(); got != DispatchLevel {
		t.Fatalf("expected a second Lower call to have no effect; runlevel is %d", got)
	}
}

func TestNestedRaise(t *testing.T) {
	defer RaiseRunLevel(PassiveLevel).Lower()

	outer := RaiseRunLevel(ApcLevel)
	inner := RaiseRunLevel(DispatchLevel)

	if got := CurrentRunLevel(); got != DispatchLevel {
		t.Fatalf("expected DispatchLevel while the inner raise is active; got %d", got)
	}

	inner.Lower()
	if got := CurrentRunLevel(); got != ApcLevel {
		t.Fatalf("expected ApcLevel restored after the inner Lower; got %d", got)
	}

	outer.Lower()
	if got := CurrentRunLevel(); got != PassiveLevel {
		t.Fatalf("expected PassiveLevel restored after the outer Lower; got %d", got)
	}
}
