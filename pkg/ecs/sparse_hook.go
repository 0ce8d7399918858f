package ecs

// observable is implemented by stores that report slot occupancy changes.
type observable interface {
	observe(fn func(id EntityID, present bool))
}

func (s *SparseArray[T]) observe(fn func(id EntityID, present bool)) {
	s.onChange = fn
}
