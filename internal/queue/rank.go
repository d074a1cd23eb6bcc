package queue

// Mid character of the ASCII '0'..'z' rank alphabet, appended to extend a
// rank string.
const midRankChar = 'U'

// NextRank returns a rank string that sorts lexicographically after prev.
// If prev is empty, it returns a single mid character. Appends happen at the
// end of the queue, so this is the only operation Append needs.
func NextRank(prev string) string {
	if prev == "" {
		return string([]rune{midRankChar})
	}
	return prev + string([]rune{midRankChar})
}
