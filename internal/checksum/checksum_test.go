package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("canvas"))
	if a != Sum([]byte("canvas")) {
		t.Fatal("sum is not stable")
	}
	if a == Sum([]byte("canvas!")) {
		t.Fatal("different input gave same sum")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
}

func TestMatches(t *testing.T) {
	sum := Sum([]byte("x"))
	cases := []struct {
		header string
		want   bool
	}{
		{ETag(sum), true},
		{sum, true},
		{"W/" + ETag(sum), true},
		{`"abc", ` + ETag(sum), true},
		{"*", true},
		{`"abc"`, false},
		{"", false},
	}
	for _, c := range cases {
		if got := Matches(c.header, sum); got != c.want {
			t.Errorf("Matches(%q) = %v, want %v", c.header, got, c.want)
		}
	}
}
