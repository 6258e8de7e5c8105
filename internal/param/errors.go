package param

import "fmt"

// ConfigError reports an invalid construction parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Reason
}

// Is matches any *ConfigError, so errors.Is(err, &ConfigError{}) works as a kind check.
func (e *ConfigError) Is(target error) bool {
	_, ok := target.(*ConfigError)
	return ok
}

// ShapeError reports a point whose size does not fit the declared shape.
type ShapeError struct {
	Got  int
	Want Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape error: cannot reshape %d values to %s (%d values)", e.Got, e.Want, e.Want.Size())
}

func (e *ShapeError) Is(target error) bool {
	_, ok := target.(*ShapeError)
	return ok
}
