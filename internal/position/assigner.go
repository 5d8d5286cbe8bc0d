package position

import "sort"

// Gap is the spacing between neighbouring positions on creation and after a
// renumbering pass.
const Gap = 1000

// Item is one entry of an ordered scope.
type Item struct {
	ID       string
	Position int
}

// Assignment is the result of placing an item into a scope.
type Assignment struct {
	Position int
	// Renumbered is set when the scope had no usable gap and every item was
	// respaced.
	Renumbered bool
	// Bumped holds the neighbours whose position changed, with their new
	// position. It is empty unless Renumbered is set.
	Bumped []Item
}

// Assign computes the position of an item inserted into target at index.
// target must be ordered by position and must not contain the moved item.
// An index past the end appends.
func Assign(target []Item, index int) Assignment {
	n := len(target)
	if n == 0 {
		return Assignment{Position: 0}
	}
	index = min(max(index, 0), n)

	switch {
	case index == 0:
		next := target[0].Position
		if next-Gap >= 0 {
			return Assignment{Position: next - Gap}
		}
		// Positions stay non-negative: halve towards zero until there is no
		// room left at the head.
		if next >= 1 {
			return Assignment{Position: next / 2}
		}
	case index == n:
		return Assignment{Position: target[n-1].Position + Gap}
	default:
		prev, next := target[index-1].Position, target[index].Position
		if next-prev >= 2 {
			return Assignment{Position: prev + (next-prev)/2}
		}
	}
	return renumber(target, index)
}

func renumber(target []Item, index int) Assignment {
	a := Assignment{Renumbered: true}
	slot := 0
	for i := 0; i <= len(target); i++ {
		pos := (i + 1) * Gap
		if i == index {
			a.Position = pos
			continue
		}
		it := target[slot]
		slot++
		if it.Position != pos {
			a.Bumped = append(a.Bumped, Item{ID: it.ID, Position: pos})
		}
	}
	return a
}

// IndexOf returns the index of id in items, or -1.
func IndexOf(items []Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// IsNoop reports whether moving id to index inside current, the ordered scope
// it already belongs to, would leave the order unchanged.
func IsNoop(current []Item, id string, index int) bool {
	i := IndexOf(current, id)
	if i < 0 {
		return false
	}
	index = min(max(index, 0), len(current)-1)
	return i == index
}

// Initial returns creation positions for n items: 0, Gap, 2*Gap...
func Initial(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i * Gap
	}
	return out
}

// Sort orders items by position, breaking ties by id so the result is stable
// across reads.
func Sort(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].ID < items[j].ID
	})
}
