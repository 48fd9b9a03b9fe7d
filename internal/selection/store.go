package selection

import "maps"

// KeyFunc derives the stable key that identifies an item.
type KeyFunc[T any] func(T) string

// Set maps item keys to a selected flag.
//
// A key mapped to false is the same as an absent key.
type Set map[string]bool

// Count returns the number of truthy entries.
func (s Set) Count() int {
	n := 0
	for _, v := range s {
		if v {
			n++
		}
	}
	return n
}

// Snapshot is the consistent state handed to observers after a mutation.
type Snapshot[T any] struct {
	Items    []T
	Selected []T
	Count    int
}

// Store holds a collection of items and the subset currently selected.
type Store[T any] struct {
	key       KeyFunc[T]
	items     []T
	keys      map[string]struct{}
	selection Set
	selected  []T
	count     int
	observers map[int]func(Snapshot[T])
	nextID    int
}

// New creates an empty Store that identifies items with key.
func New[T any](key KeyFunc[T]) *Store[T] {
	return &Store[T]{
		key:       key,
		keys:      map[string]struct{}{},
		selection: Set{},
		observers: map[int]func(Snapshot[T]){},
	}
}

// Initialize replaces the backing collection.
//
// The selection survives only when the new collection has exactly the same key set as the old one.
func (s *Store[T]) Initialize(items []T) {
	keys := make(map[string]struct{}, len(items))
	for _, item := range items {
		keys[s.key(item)] = struct{}{}
	}

	if !sameKeys(s.keys, keys) {
		s.selection = Set{}
	}

	s.items = append([]T(nil), items...)
	s.keys = keys
	s.commit()
}

// Toggle flips the selected flag for key. Keys missing from the collection are ignored.
func (s *Store[T]) Toggle(key string) {
	if _, ok := s.keys[key]; !ok {
		return
	}

	if s.selection[key] {
		delete(s.selection, key)
	} else {
		s.selection[key] = true
	}
	s.commit()
}

// SetSelection replaces the whole selection. Passing an empty [Set] clears it.
func (s *Store[T]) SetSelection(set Set) {
	next := make(Set, len(set))
	for k, v := range set {
		if v {
			next[k] = true
		}
	}
	s.selection = next
	s.commit()
}

// SelectAll marks every item of the collection as selected.
func (s *Store[T]) SelectAll() {
	next := make(Set, len(s.keys))
	for k := range s.keys {
		next[k] = true
	}
	s.selection = next
	s.commit()
}

// SelectedItems returns the selected items in collection order.
func (s *Store[T]) SelectedItems() []T {
	return append([]T(nil), s.selected...)
}

// SelectedCount returns the number of selected keys present in the collection.
func (s *Store[T]) SelectedCount() int {
	return s.count
}

// IsSelected reports whether key is marked as selected.
func (s *Store[T]) IsSelected(key string) bool {
	return s.selection[key]
}

// Items returns the backing collection.
func (s *Store[T]) Items() []T {
	return append([]T(nil), s.items...)
}

// Selection returns a copy of the raw selection, including keys that are no longer in the collection.
func (s *Store[T]) Selection() Set {
	return maps.Clone(s.selection)
}

// Subscribe registers fn to run after every mutation and returns a function that removes it.
func (s *Store[T]) Subscribe(fn func(Snapshot[T])) func() {
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() { delete(s.observers, id) }
}

// commit recomputes the derived values, then notifies observers.
func (s *Store[T]) commit() {
	selected := make([]T, 0, len(s.selection))
	for _, item := range s.items {
		if s.selection[s.key(item)] {
			selected = append(selected, item)
		}
	}
	s.selected = selected

	s.count = 0
	for k, v := range s.selection {
		if _, ok := s.keys[k]; ok && v {
			s.count++
		}
	}

	if len(s.observers) == 0 {
		return
	}

	snap := Snapshot[T]{
		Items:    s.Items(),
		Selected: s.SelectedItems(),
		Count:    s.count,
	}
	for _, fn := range s.observers {
		fn(snap)
	}
}

func sameKeys(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
