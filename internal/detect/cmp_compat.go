package detect

// cmpOr returns the first of its arguments that is not equal to the zero
// value, or the zero value if there is none. It mirrors the standard
// library's cmp.Or (Go 1.22+) for toolchains that predate it.
func cmpOr[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}
