// Package sensors provides the sensor-kind interfaces, sample records and
// the process-wide sensor directory used to route samples from drivers to
// downstream consumers.
package sensors

import "sync"

// MagData is a single magnetometer sample in the board frame.
type MagData struct {
	X, Y, Z     int16   // milligauss
	Temperature float64 // degrees C; only populated when the driver samples the die temperature
}

// Channel identifies a sensor kind in the directory.
type Channel int

const (
	Mag Channel = iota
	Baro
	Gyro
	Accel
)

var directory = struct {
	sync.Mutex
	queues map[Channel]interface{}
}{queues: make(map[Channel]interface{})}

// Register publishes a driver's sample queue under the given channel.
// Registering a channel twice replaces the previous queue.
func Register(c Channel, queue interface{}) {
	directory.Lock()
	directory.queues[c] = queue
	directory.Unlock()
}

// Lookup returns the queue registered under the given channel, if any.
func Lookup(c Channel) (interface{}, bool) {
	directory.Lock()
	q, ok := directory.queues[c]
	directory.Unlock()
	return q, ok
}

// MagQueue returns the magnetometer sample queue, if a magnetometer driver
// has registered one.
func MagQueue() (<-chan MagData, bool) {
	q, ok := Lookup(Mag)
	if !ok {
		return nil, false
	}
	ch, ok := q.(chan MagData)
	return ch, ok
}
