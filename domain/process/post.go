package process

// First returns the first element of a ranked candidate list, or empty when
// the list is empty. Candidates arrive sorted best-first.
func First(ranked []string) string {
	if len(ranked) == 0 {
		return ""
	}
	return ranked[0]
}
