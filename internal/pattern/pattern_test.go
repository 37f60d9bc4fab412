package pattern

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"./src/auth/login.go", []string{"src", "auth", "login.go"}},
		{"src//auth///login.go", []string{"src", "auth", "login.go"}},
		{"**", []string{"**"}},
		{"", nil},
		{"/", nil},
	}
	for _, c := range cases {
		got := Normalize(c.in)
		if !equalSlices(got, c.want) {
			t.Errorf("Normalize(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIntersectsLiterals(t *testing.T) {
	if !Intersects("src/auth/login.go", "src/auth/login.go") {
		t.Fatal("identical literal patterns must intersect")
	}
	if Intersects("src/auth/login.go", "src/auth/logout.go") {
		t.Fatal("distinct literal files must not intersect")
	}
}

func TestIntersectsWildcardSegment(t *testing.T) {
	if !Intersects("src/auth/*.go", "src/auth/login.go") {
		t.Fatal("* should match a concrete file in the same directory")
	}
	if Intersects("src/auth/*.go", "src/billing/login.go") {
		t.Fatal("* never crosses a differing literal segment")
	}
	if !Intersects("src/*/login.go", "src/auth/login.go") {
		t.Fatal("* in a middle segment should still intersect")
	}
}

func TestIntersectsDoubleStar(t *testing.T) {
	if !Intersects("src/**", "src/auth/login.go") {
		t.Fatal("src/** should absorb any depth under src/")
	}
	if !Intersects("**", "anything/at/all.go") {
		t.Fatal("bare ** should intersect with every pattern")
	}
	if !Intersects("**/login.go", "src/auth/login.go") {
		t.Fatal("**/login.go should match login.go at any depth")
	}
	if Intersects("**/login.go", "src/auth/logout.go") {
		t.Fatal("**/login.go must not match a differently named file")
	}
	if !Intersects("src/**", "src") {
		t.Fatal("** must also accept the zero-segment case")
	}
}

func TestIntersectsTwoDoubleStars(t *testing.T) {
	if !Intersects("src/**", "**/auth/**") {
		t.Fatal("two ** patterns sharing a literal anchor should intersect")
	}
	if !Intersects("src/**", "**/billing/config.go") {
		t.Fatal("src/** and **/billing/config.go should intersect at src/billing/config.go")
	}
}

func TestIntersectsDisjointPrefix(t *testing.T) {
	if Intersects("src/auth/**", "docs/**") {
		t.Fatal("disjoint literal roots must never intersect regardless of trailing **")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
