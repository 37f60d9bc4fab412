// Package pattern decides whether two glob path patterns can ever match
// the same concrete path, without enumerating paths or compiling regexes
// (spec.md §4.4, §9).
//
// A pattern is a sequence of segments split on "/". A segment is one of:
// a literal, a single-segment glob containing "*" (such as "*" or "*.go";
// "*" matches any run of characters inside one segment, never "/"), or
// "**" (matches zero or more path segments). Two patterns intersect iff there is some
// path their segment languages both accept; this is decided with a
// small dynamic-programming automaton product over the two segment
// sequences rather than by generating candidate paths.
package pattern

import (
	"path"
	"strings"
)

// Normalize strips a leading "./" and collapses repeated slashes, then
// splits the pattern into segments (spec.md §4.4 step 1).
func Normalize(p string) []string {
	p = strings.TrimPrefix(p, "./")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Intersects reports whether patterns p1 and p2 can match at least one
// common concrete path.
func Intersects(p1, p2 string) bool {
	return SegmentsIntersect(Normalize(p1), Normalize(p2))
}

// SegmentsIntersect is the automaton product over two already-split
// segment sequences. dp[i][j] (memoized by the recursion below) holds
// whether the suffixes a[i:] and b[j:] can both match a shared path
// suffix.
func SegmentsIntersect(a, b []string) bool {
	memo := map[[2]int]bool{}

	var rec func(i, j int) bool
	rec = func(i, j int) bool {
		if i == len(a) && j == len(b) {
			return true
		}
		if i == len(a) {
			return allDoubleStar(b[j:])
		}
		if j == len(b) {
			return allDoubleStar(a[i:])
		}

		key := [2]int{i, j}
		if v, ok := memo[key]; ok {
			return v
		}

		ai, bj := a[i], b[j]
		var result bool
		switch {
		case ai == "**" || bj == "**":
			// ** absorbs zero or more segments on its side; advancing
			// either index by one covers both "absorb one more" and
			// "stop absorbing" without needing to special-case which
			// side owns the **.
			result = rec(i+1, j) || rec(i, j+1)
		default:
			result = segmentCompatible(ai, bj) && rec(i+1, j+1)
		}
		memo[key] = result
		return result
	}
	return rec(0, 0)
}

func segmentCompatible(a, b string) bool {
	if !strings.Contains(b, "*") {
		ok, _ := path.Match(a, b)
		return ok
	}
	if !strings.Contains(a, "*") {
		ok, _ := path.Match(b, a)
		return ok
	}
	// Both segments hold a *: some name matches both iff the literal text
	// before the first * and after the last * are compatible.
	ap, bp := a[:strings.Index(a, "*")], b[:strings.Index(b, "*")]
	as, bs := a[strings.LastIndex(a, "*")+1:], b[strings.LastIndex(b, "*")+1:]
	return (strings.HasPrefix(ap, bp) || strings.HasPrefix(bp, ap)) &&
		(strings.HasSuffix(as, bs) || strings.HasSuffix(bs, as))
}

func allDoubleStar(segs []string) bool {
	for _, s := range segs {
		if s != "**" {
			return false
		}
	}
	return true
}
