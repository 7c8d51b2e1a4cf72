package grading

// ExactMatch reports whether submitted equals any candidate after trimming and
// lower-casing both sides. There is no partial credit.
func ExactMatch(submitted string, candidates []string) bool {
	needle := canonical(submitted)
	for _, candidate := range candidates {
		if canonical(candidate) == needle {
			return true
		}
	}
	return false
}
