package router

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// orderedWeights is an insertion-ordered target -> weight map. The
// deterministic bucketing in spec.md §4.4 walks targets in the order they
// first appeared in the configuration document, which a plain Go map
// cannot preserve.
type orderedWeights struct {
	order  []string
	values map[string]int
}

func newOrderedWeights() *orderedWeights {
	return &orderedWeights{values: map[string]int{}}
}

func (w *orderedWeights) set(target string, weight int) {
	if _, ok := w.values[target]; !ok {
		w.order = append(w.order, target)
	}
	w.values[target] = weight
}

func (w *orderedWeights) total() int {
	t := 0
	for _, k := range w.order {
		t += w.values[k]
	}
	return t
}

func (w *orderedWeights) empty() bool { return len(w.order) == 0 }

// weightedPick implements the deterministic weighted pick of spec.md §4.4:
// r derives from SHA-256("{userId}:{promptId}:{salt}") when userId is
// present, otherwise a uniform pseudo-random draw; the first target whose
// cumulative weight crosses r·T is selected.
func weightedPick(w *orderedWeights, userID, promptID, salt string) (string, int) {
	if w.empty() {
		return "", 0
	}
	total := w.total()
	if total <= 0 {
		return w.order[0], w.values[w.order[0]]
	}

	r := fractionalDraw(userID, promptID, salt)
	remaining := r * float64(total)
	for _, target := range w.order {
		remaining -= float64(w.values[target])
		if remaining <= 0 {
			return target, w.values[target]
		}
	}
	last := w.order[len(w.order)-1]
	return last, w.values[last]
}

func fractionalDraw(userID, promptID, salt string) float64 {
	if userID == "" {
		return rand.Float64()
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", userID, promptID, salt)))
	v := binary.BigEndian.Uint32(sum[:4])
	return float64(v) / 4294967296.0
}
