//go:build !linux && !darwin

package hardware

// totalRAMGB has no portable probe on this platform; Recommend falls into
// the smallest tier when RAM is unknown.
func totalRAMGB() float64 {
	return 0
}
