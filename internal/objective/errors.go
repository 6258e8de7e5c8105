package objective

// LoadError is returned when a target asset is missing or cannot be decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return "load error: " + e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool {
	_, ok := target.(*LoadError)
	return ok
}

// EvaluationError is returned when computing a fitness value fails, most
// often because the classifier forward pass failed.
type EvaluationError struct {
	Function string
	Err      error
}

func (e *EvaluationError) Error() string {
	return "evaluation error in " + e.Function + ": " + e.Err.Error()
}

func (e *EvaluationError) Unwrap() error { return e.Err }

func (e *EvaluationError) Is(target error) bool {
	_, ok := target.(*EvaluationError)
	return ok
}
