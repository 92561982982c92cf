package world

// registry is an id-keyed collection that iterates in insertion order, which
// is the order snapshots list entities in.
type registry[T any] struct {
	ids  []string
	byID map[string]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{byID: map[string]T{}}
}

func (r *registry[T]) add(id string, v T) {
	if _, ok := r.byID[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.byID[id] = v
}

func (r *registry[T]) get(id string) (T, bool) {
	v, ok := r.byID[id]
	return v, ok
}

func (r *registry[T]) remove(id string) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, x := range r.ids {
		if x == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
}

func (r *registry[T]) len() int { return len(r.ids) }

// values returns a copy so callers may mutate the registry while iterating.
func (r *registry[T]) values() []T {
	out := make([]T, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}
