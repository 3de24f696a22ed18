package redlock

// Quorum returns the number of nodes that must agree out of n.
func Quorum(n int) int {
	return n/2 + 1
}
