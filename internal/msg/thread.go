package msg

import "sort"

// ThreadKey identifies the thread between two users as an unordered
// pair. A and B are always stored in lexicographic order so the same
// pair produces the same key regardless of argument order.
type ThreadKey struct {
	A, B string
}

// Key normalizes two user ids into a ThreadKey.
func Key(a, b string) ThreadKey {
	if b < a {
		a, b = b, a
	}
	return ThreadKey{A: a, B: b}
}

// SortByTimestamp orders messages ascending by timestamp. Messages
// with equal timestamps keep their relative order.
func SortByTimestamp(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}
