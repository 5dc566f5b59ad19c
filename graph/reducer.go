package graph

// Reducer combines the current value of a state field with an update.
// Merge implementations compose one reducer per field.
type Reducer[T any] func(current T, update T) T

// LastValueReducer returns the most recent value.
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// KeepNonZeroReducer takes the update unless it is the zero value, so a partial
// update that leaves a field empty does not erase it.
func KeepNonZeroReducer[T comparable]() Reducer[T] {
	return func(current, update T) T {
		var zero T
		if update == zero {
			return current
		}
		return update
	}
}

// AppendReducer appends slices together into a fresh slice.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		if len(update) == 0 {
			return current
		}
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// MergeMapReducer merges maps, with update values taking precedence.
func MergeMapReducer[K comparable, V any]() Reducer[map[K]V] {
	return func(current, update map[K]V) map[K]V {
		if len(update) == 0 {
			return current
		}
		result := make(map[K]V, len(current)+len(update))
		for k, v := range current {
			result[k] = v
		}
		for k, v := range update {
			result[k] = v
		}
		return result
	}
}

// SumReducer sums numeric values.
func SumReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		return current + update
	}
}

// MaxReducer keeps the maximum value.
func MaxReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		if update > current {
			return update
		}
		return current
	}
}
