package model

// Optional holds a value that may be absent. The zero value is absent.
// Absent is a valid value and compares unequal to every present value.
type Optional[T comparable] struct {
	Value T    `json:"value,omitempty"`
	Valid bool `json:"valid"`
}

// Some returns a present Optional.
func Some[T comparable](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// None returns an absent Optional.
func None[T comparable]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// OrElse returns the value when present, otherwise def.
func (o Optional[T]) OrElse(def T) T {
	if o.Valid {
		return o.Value
	}
	return def
}

// Equal reports whether both are absent or both hold equal values.
func (o Optional[T]) Equal(other Optional[T]) bool {
	if o.Valid != other.Valid {
		return false
	}
	return !o.Valid || o.Value == other.Value
}
