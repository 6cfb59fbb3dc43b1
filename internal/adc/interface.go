package adc

// Reader performs one raw acquisition on one hardware channel. A fault is
// reported through the error return; implementations never panic across this
// boundary and never block longer than the hardware transaction itself.
type Reader interface {
	// Read returns the raw converter code for the given channel,
	// in [0, Resolution).
	Read(channel int) (int, error)
}
