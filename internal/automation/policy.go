package automation

// Decide applies the threshold policy to one reading.
//
// An off device turns on when reading < th.On. An on device turns off when
// reading >= th.OffAt(). It returns the next power state and whether that
// differs from the current one; callers only act when changed is true, so a
// repeated reading never produces a repeated command.
func Decide(reading float64, on bool, th Thresholds) (next bool, changed bool) {
	if !on && reading < th.On {
		return true, true
	}
	if on && reading >= th.OffAt() {
		return false, true
	}
	return on, false
}
