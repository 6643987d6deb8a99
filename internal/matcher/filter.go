package matcher

// TimeCompatible applies the departure window check.
// delta is |T_s - T_c| in minutes and tau the larger of the two tolerances.
func TimeCompatible(searcherMin, searcherTol, candidateMin, candidateTol int) (delta, tau int, ok bool) {
	delta = searcherMin - candidateMin
	if delta < 0 {
		delta = -delta
	}
	tau = searcherTol
	if candidateTol > tau {
		tau = candidateTol
	}
	if tau < 0 {
		tau = 0
	}
	return delta, tau, delta <= tau
}
