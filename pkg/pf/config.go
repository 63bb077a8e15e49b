package pf

// Config holds the outer fixed-point loop's tunables. There is no
// flag/env parser here: the library core takes a plain struct.
type Config struct {
	Tolerance            float64
	MaxIterations        int
	UsePivotPerturbation bool
}

// DefaultConfig returns conservative defaults suitable for most studies.
func DefaultConfig() Config {
	return Config{
		Tolerance:            1e-8,
		MaxIterations:        20,
		UsePivotPerturbation: false,
	}
}

// Result reports how the outer loop finished.
type Result struct {
	Iterations   int
	MaxDeviation float64
	Perturbed    bool
}
