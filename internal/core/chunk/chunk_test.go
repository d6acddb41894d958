package chunk

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

func asins(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("B0%08d", i)
	}
	return out
}

func TestSplitIntegrity(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(7))
	for n := 0; n < 300; n += 1 + r.Intn(9) {
		in := asins(n)
		// sprinkle variable length ids
		for i := range in {
			if r.Intn(5) == 0 {
				in[i] = in[i] + strings.Repeat("X", r.Intn(30))
			}
		}
		batches := Split(in, Limit)
		var flat []string
		for _, b := range batches {
			if len(b) == 0 {
				t.Fatalf("n=%d: empty batch", n)
			}
			if s := Join(b); len(s) > Limit {
				t.Fatalf("n=%d: batch of %d chars exceeds %d", n, len(s), Limit)
			}
			flat = append(flat, b...)
		}
		if strings.Join(flat, " ") != strings.Join(in, " ") {
			t.Fatalf("n=%d: ids lost, duplicated or reordered", n)
		}
	}
}

func TestSplitBoundaries(t *testing.T) {
	t.Parallel()
	// 10 char ids: 18 fit in 18*10+17 = 197 chars, the 19th would need 208
	batches := Split(asins(19), Limit)
	if len(batches) != 2 || len(batches[0]) != 18 || len(batches[1]) != 1 {
		t.Fatalf("got %d batches: %v", len(batches), batches)
	}

	exact := []string{strings.Repeat("A", 99), strings.Repeat("B", 100)}
	if got := Split(exact, Limit); len(got) != 1 {
		t.Fatalf("joined length exactly at the limit must fit, got %v", got)
	}

	long := []string{"B000000001", strings.Repeat("Z", 250), "B000000002"}
	got := Split(long, Limit)
	if len(got) != 3 || got[1][0] != long[1] {
		t.Fatalf("oversized id should stand alone, got %v", got)
	}

	if got := Split([]string{" ", ""}, Limit); len(got) != 0 {
		t.Fatalf("blank ids should be skipped, got %v", got)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	ids := Parse(" B01  B02 B03 ")
	if len(ids) != 3 || ids[2] != "B03" {
		t.Fatalf("Parse = %v", ids)
	}
}
