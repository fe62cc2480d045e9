package pathutil

// HasDotSegments reports whether any slash-separated segment of p is
// "." or "..". Callers reject such paths outright instead of cleaning
// them, so a crafted reference can never climb out of its root.
func HasDotSegments(p string) bool {
	for i := 0; i < len(p); {
		j := i
		for j < len(p) && p[j] != '/' {
			j++
		}
		switch p[i:j] {
		case ".", "..":
			return true
		}
		i = j + 1
	}
	return false
}
