package util

// EngineError wraps a lower-level error with a message meaningful at the
// call site, the way pkg/errors.Wrap does, but as a named type so callers
// can distinguish engine-level failures (e.g. with errors.As) from
// ordinary wrapped errors elsewhere in the stack.
type EngineError struct {
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// BufferpoolExhaustedError names the failure of a NewPage/FetchPage
// request when every frame in the pool is pinned and none can be evicted.
// The buffer pool and index report that condition with a nil frame or a
// plain error and do not construct this type.
type BufferpoolExhaustedError struct {
	*EngineError
}
