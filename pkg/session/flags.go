package session

// Flags is the proctoring flag set for a session.
// Merging is a monotonic OR: a flag that is set stays set.
type Flags struct {
	MultipleFaces  bool `json:"multiple_faces"`
	AnomalousNoise bool `json:"anomalous_noise"`
	AISuspected    bool `json:"ai_suspected"`
}

// Merge returns the union of f and other.
func (f Flags) Merge(other Flags) Flags {
	return Flags{
		MultipleFaces:  f.MultipleFaces || other.MultipleFaces,
		AnomalousNoise: f.AnomalousNoise || other.AnomalousNoise,
		AISuspected:    f.AISuspected || other.AISuspected,
	}
}

// Any reports whether any flag is set.
func (f Flags) Any() bool {
	return f.MultipleFaces || f.AnomalousNoise || f.AISuspected
}

// Delta returns the flags set in f but not in delivered.
func (f Flags) Delta(delivered Flags) Flags {
	return Flags{
		MultipleFaces:  f.MultipleFaces && !delivered.MultipleFaces,
		AnomalousNoise: f.AnomalousNoise && !delivered.AnomalousNoise,
		AISuspected:    f.AISuspected && !delivered.AISuspected,
	}
}

// Ints returns the flags as the 0/1 integers the backend stores.
func (f Flags) Ints() (multipleFaces, noise, ai int) {
	return boolToInt(f.MultipleFaces), boolToInt(f.AnomalousNoise), boolToInt(f.AISuspected)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
