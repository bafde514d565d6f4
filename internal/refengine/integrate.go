package refengine

// derivFunc evaluates dx/dt at state x with the current inputs.
type derivFunc func(x []float64) []float64

// stepRK4 advances x by one classical Runge-Kutta step of size h and
// returns the new state.
func stepRK4(deriv derivFunc, x []float64, h float64) []float64 {
	n := len(x)
	k1 := deriv(x)

	scratch := make([]float64, n)
	for i := 0; i < n; i++ {
		scratch[i] = x[i] + h*0.5*k1[i]
	}
	k2 := deriv(scratch)

	for i := 0; i < n; i++ {
		scratch[i] = x[i] + h*0.5*k2[i]
	}
	k3 := deriv(scratch)

	for i := 0; i < n; i++ {
		scratch[i] = x[i] + h*k3[i]
	}
	k4 := deriv(scratch)

	result := make([]float64, n)
	h6 := h / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + h6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return result
}

// stepEuler advances x by one explicit Euler step of size h.
func stepEuler(deriv derivFunc, x []float64, h float64) []float64 {
	dx := deriv(x)
	result := make([]float64, len(x))
	for i := range x {
		result[i] = x[i] + h*dx[i]
	}
	return result
}
