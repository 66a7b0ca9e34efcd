package hot

// Init adapts a typed initializer to the HotInit signature.
func Init[T any](fn func() T) func() any {
	return func() any {
		return fn()
	}
}

// Main adapts a typed main loop to the HotMain signature.
func Main[T any](fn func(state T, cancel <-chan struct{}) T) func(any, <-chan struct{}) any {
	return func(state any, cancel <-chan struct{}) any {
		return fn(MustCast[T](state), cancel)
	}
}

// PostMain adapts a typed post-main hook to the HotPostMain signature.
func PostMain[T any](fn func(state T) T) func(any) any {
	return func(state any) any {
		return fn(MustCast[T](state))
	}
}

// Drop adapts a typed finalizer to the HotDrop signature.
func Drop[T any](fn func(state T)) func(any) {
	return func(state any) {
		fn(MustCast[T](state))
	}
}
