package conversation

// Truncate keeps only the last max turns, dropping the oldest first.
// A non-positive max disables truncation.
func Truncate(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}
