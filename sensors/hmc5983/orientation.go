package hmc5983

import "fmt"

// Orientation describes how the sensor is mounted relative to the board:
// which face of the PCB carries it and its rotation about the vertical
// axis. Zero rotation is defined with the board fiducial in the front left.
type Orientation int32

const (
	Top0 Orientation = iota
	Top90
	Top180
	Top270
	Bottom0
	Bottom90
	Bottom180
	Bottom270
)

// apply maps a converted device-frame reading onto the board frame. The
// eight mountings are an explicit table rather than a rotation matrix so
// the sampling path never touches floating point.
func (o Orientation) apply(x, y, z int16) (bx, by, bz int16) {
	switch o {
	case Top90:
		return -y, -x, -z
	case Top180:
		return x, -y, -z
	case Top270:
		return y, x, -z
	case Bottom0:
		return -x, -y, z
	case Bottom90:
		return -y, x, z
	case Bottom180:
		return x, y, z
	case Bottom270:
		return y, -x, z
	default: // Top0
		return -x, y, -z
	}
}

// OrientationFromName maps a settings-file orientation name such as
// "TOP_90" or "BOTTOM_270" to its Orientation value.
func OrientationFromName(name string) (Orientation, error) {
	switch name {
	case "TOP_0", "":
		return Top0, nil
	case "TOP_90":
		return Top90, nil
	case "TOP_180":
		return Top180, nil
	case "TOP_270":
		return Top270, nil
	case "BOTTOM_0":
		return Bottom0, nil
	case "BOTTOM_90":
		return Bottom90, nil
	case "BOTTOM_180":
		return Bottom180, nil
	case "BOTTOM_270":
		return Bottom270, nil
	}
	return Top0, fmt.Errorf("hmc5983: unknown orientation %q", name)
}
