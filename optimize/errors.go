package optimize

import "fmt"

// ConfigurationError reports an optimizer misconfiguration such as a
// negative demo bound or an empty training set. It is raised before any
// model invocation happens.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "optimizer configuration: " + e.Reason
}

// MetricError reports a metric failure, e.g. a nested judge call that could
// not produce a score. It is caught at the evaluation boundary and
// converted to the minimum score for the affected example.
type MetricError struct {
	Err error
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("metric: %v", e.Err)
}

func (e *MetricError) Unwrap() error {
	return e.Err
}
