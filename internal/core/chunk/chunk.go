// Package chunk splits ASIN lists into batches the provider accepts in a
// single report request
package chunk

import "strings"

// Limit is the provider cap on the space separated ASIN option
const Limit = 200

// Sep joins identifiers inside a batch
const Sep = " "

// Split greedily packs ids into batches whose joined form stays within limit.
// Order is preserved and every id lands in exactly one batch. An id longer
// than limit on its own still gets a batch of its own. Blank ids are skipped
func Split(ids []string, limit int) [][]string {
	if limit <= 0 {
		limit = Limit
	}
	var (
		out  [][]string
		cur  []string
		size int
	)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if len(cur) > 0 && size+len(Sep)+len(id) > limit {
			out = append(out, cur)
			cur, size = nil, 0
		}
		if len(cur) == 0 {
			size = len(id)
		} else {
			size += len(Sep) + len(id)
		}
		cur = append(cur, id)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// Join renders a batch the way it is sent and stored
func Join(batch []string) string { return strings.Join(batch, Sep) }

// Parse splits a stored batch back into ids
func Parse(s string) []string { return strings.Fields(s) }
