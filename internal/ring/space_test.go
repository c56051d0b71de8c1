package ring

import "testing"

func TestBetween(t *testing.T) {
	sp, err := NewSpace(3, 3) // M = 8
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	id := func(v uint64) ID { return sp.FromUint64(v) }

	tests := []struct {
		name    string
		a, b, x uint64
		want    bool
	}{
		{"linear hit", 2, 6, 4, true},
		{"linear miss reversed args", 6, 2, 4, false},
		{"wrap hit above a", 6, 2, 7, true},
		{"wrap hit below b", 6, 2, 0, true},
		{"exclusive lower bound", 2, 6, 2, false},
		{"exclusive upper bound", 2, 6, 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := id(tt.x).Between(id(tt.a), id(tt.b))
			if got != tt.want {
				t.Errorf("between(%d,%d,%d) = %v, want %v", tt.a, tt.b, tt.x, got, tt.want)
			}
		})
	}
}

func TestBetweenSameEndpoint(t *testing.T) {
	sp, _ := NewSpace(3, 3)
	a := sp.FromUint64(5)
	for x := uint64(0); x < 8; x++ {
		got := sp.FromUint64(x).Between(a, a)
		want := x != 5
		if got != want {
			t.Errorf("between(5,5,%d) = %v, want %v", x, got, want)
		}
	}
}

func TestBetweenRightInclusive(t *testing.T) {
	sp, _ := NewSpace(3, 3)
	id := func(v uint64) ID { return sp.FromUint64(v) }
	if !id(6).BetweenRightInclusive(id(2), id(6)) {
		t.Errorf("(2,6] should include 6")
	}
	if id(2).BetweenRightInclusive(id(2), id(6)) {
		t.Errorf("(2,6] should exclude 2")
	}
}

func TestBetweenLeftInclusive(t *testing.T) {
	sp, _ := NewSpace(3, 3)
	id := func(v uint64) ID { return sp.FromUint64(v) }
	if !id(2).BetweenLeftInclusive(id(2), id(6)) {
		t.Errorf("[2,6) should include 2")
	}
	if id(6).BetweenLeftInclusive(id(2), id(6)) {
		t.Errorf("[2,6) should exclude 6")
	}
}

func TestAddMod(t *testing.T) {
	sp, _ := NewSpace(3, 3) // M = 8
	got, err := sp.AddMod(sp.FromUint64(7), sp.FromUint64(1))
	if err != nil {
		t.Fatalf("AddMod: %v", err)
	}
	if got.ToBigInt().Uint64() != 0 {
		t.Errorf("(7+1) mod 8 = %d, want 0", got.ToBigInt().Uint64())
	}
}

func TestAddPow2(t *testing.T) {
	sp, _ := NewSpace(7, 5) // M = 128
	self := sp.FromUint64(3)
	for i := 0; i < 7; i++ {
		got, err := sp.AddPow2(self, i)
		if err != nil {
			t.Fatalf("AddPow2(%d): %v", i, err)
		}
		want := (3 + (uint64(1) << uint(i))) % 128
		if got.ToBigInt().Uint64() != want {
			t.Errorf("AddPow2(self,%d) = %d, want %d", i, got.ToBigInt().Uint64(), want)
		}
	}
}

func TestFromHexStringRejectsOverflow(t *testing.T) {
	sp, _ := NewSpace(4, 3) // M = 16, ByteLen = 1, extraBits = 4
	if _, err := sp.FromHexString("0xff"); err == nil {
		t.Errorf("expected overflow rejection for 0xff in a 4-bit space")
	}
	if _, err := sp.FromHexString("0x0f"); err != nil {
		t.Errorf("0x0f should be valid in a 4-bit space: %v", err)
	}
}

func TestCmpAndEqual(t *testing.T) {
	sp, _ := NewSpace(7, 5)
	a := sp.FromUint64(10)
	b := sp.FromUint64(20)
	if a.Cmp(b) >= 0 {
		t.Errorf("10 should compare less than 20")
	}
	if !a.Equal(sp.FromUint64(10)) {
		t.Errorf("equal IDs should compare equal")
	}
}
