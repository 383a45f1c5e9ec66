package health

// Checker reports the health of a dependency. A nil error means healthy.
type Checker interface {
	Check() error
}

// CheckerFunc adapts a plain function to a Checker.
type CheckerFunc func() error

func (f CheckerFunc) Check() error {
	return f()
}
