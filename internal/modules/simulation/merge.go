package simulation

import "container/heap"

// cursor points at the next unread value of one sorted run
type cursor struct {
	run []float64
	pos int
}

// cursorHeap orders cursors by their current value; ties go to the lower run
// index so the merge output never depends on completion order.
type cursorHeap struct {
	cursors []*cursor
	order   []int
}

func (h *cursorHeap) Len() int { return len(h.cursors) }

func (h *cursorHeap) Less(i, j int) bool {
	a := h.cursors[i].run[h.cursors[i].pos]
	b := h.cursors[j].run[h.cursors[j].pos]
	if a != b {
		return a < b
	}
	return h.order[i] < h.order[j]
}

func (h *cursorHeap) Swap(i, j int) {
	h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i]
	h.order[i], h.order[j] = h.order[j], h.order[i]
}

func (h *cursorHeap) Push(x any) {
	entry := x.(heapEntry)
	h.cursors = append(h.cursors, entry.cursor)
	h.order = append(h.order, entry.order)
}

func (h *cursorHeap) Pop() any {
	n := len(h.cursors) - 1
	entry := heapEntry{cursor: h.cursors[n], order: h.order[n]}
	h.cursors = h.cursors[:n]
	h.order = h.order[:n]
	return entry
}

type heapEntry struct {
	cursor *cursor
	order  int
}

// mergeSorted k-way merges ascending runs into one ascending slice.
// The result is exact: no binning or approximation.
func mergeSorted(runs [][]float64) []float64 {
	total := 0
	for _, r := range runs {
		total += len(r)
	}
	out := make([]float64, 0, total)

	h := &cursorHeap{}
	for i, r := range runs {
		if len(r) > 0 {
			h.cursors = append(h.cursors, &cursor{run: r})
			h.order = append(h.order, i)
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		top := h.cursors[0]
		out = append(out, top.run[top.pos])
		top.pos++
		if top.pos == len(top.run) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return out
}
