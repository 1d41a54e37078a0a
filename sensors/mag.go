package sensors

// MagReader provides an interface to a 3-axis magnetometer, such as the
// Honeywell HMC5983. Samples are not pulled through the interface; drivers
// deliver them through the queue they register under the Mag channel.
type MagReader interface {
	// SelfTest verifies the device identifies itself correctly.
	SelfTest() error
	// Close stops the acquisition task.
	Close()
}
