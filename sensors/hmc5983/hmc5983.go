package hmc5983

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kidoman/embd"

	"github.com/Cro2230/dRonin/sensors"
)

var (
	errNotInitialized = errors.New("hmc5983: device not initialized")
	errConfigWrite    = errors.New("hmc5983: failed to configure sensor, check connection")
	errWrongID        = errors.New("hmc5983: wrong identification, expected \"H43\"")
	errBadLength      = errors.New("hmc5983: read length must be 1..255")
)

// Sentinel guarding against use of a zero or corrupted device record.
const hmcMagic uint32 = 0x35393833

const initRetryDelay = 100 * time.Millisecond

// Config holds the immutable device configuration. Use the register code
// constants from this package, or the *From* helpers when starting from
// physical units.
type Config struct {
	ODR         byte        // output data rate code (ODR0_75 .. ODR220)
	Averaging   byte        // sample averaging code (Avg1 .. Avg8)
	Bias        byte        // measurement bias code (BiasNormal ..)
	Gain        byte        // gain code (Gain0_88 .. Gain8_1)
	Mode        byte        // operating mode code (ModeContinuous ..)
	Orientation Orientation // mounting relative to the board fiducial
	Temperature bool        // sample the die temperature with each burst
	DRDYPin     int         // GPIO pin wired to DRDY; < 0 selects polled mode
}

// HMC5983 represents an HMC5983 attached to the I2C bus. It satisfies the
// sensors.MagReader interface and delivers board-frame samples through the
// queue it registers under the sensors.Mag channel.
type HMC5983 struct {
	bus         embd.I2CBus
	mu          sync.Mutex // spans multi-step transactions; the bus is shared with other sensor tasks
	cfg         Config
	queue       chan sensors.MagData
	drdy        chan struct{}
	pin         embd.DigitalPin
	orientation atomic.Int32
	quit        chan struct{}
	magic       uint32
}

// New allocates and configures an HMC5983 on the given bus, registers its
// sample queue with the sensor directory and starts the acquisition task.
// When cfg.DRDYPin is wired and the mode is continuous the task paces
// itself off the data-ready edge, otherwise it polls at the configured
// output data rate.
func New(bus embd.I2CBus, cfg Config) (*HMC5983, error) {
	h := &HMC5983{
		bus:   bus,
		cfg:   cfg,
		queue: make(chan sensors.MagData, 1),
		quit:  make(chan struct{}),
	}
	h.orientation.Store(int32(cfg.Orientation))

	if cfg.DRDYPin >= 0 {
		pin, err := embd.NewDigitalPin(cfg.DRDYPin)
		if err != nil {
			return nil, err
		}
		if err := pin.SetDirection(embd.In); err != nil {
			return nil, err
		}
		if err := pin.Watch(embd.EdgeRising, func(embd.DigitalPin) {
			h.IRQHandler()
		}); err != nil {
			return nil, err
		}
		h.pin = pin
		h.drdy = make(chan struct{}, 1)
	}

	h.magic = hmcMagic
	if err := h.configure(); err != nil {
		return nil, err
	}

	sensors.Register(sensors.Mag, h.queue)
	go h.run()

	return h, nil
}

// validate rejects use of a nil, uninitialized or corrupted device record.
func (h *HMC5983) validate() error {
	if h == nil || h.magic != hmcMagic || h.bus == nil {
		return errNotInitialized
	}
	return nil
}

// configure writes the three configuration registers. They must go out in
// order A, B, Mode: the mode write arms conversion and has to come last.
func (h *HMC5983) configure() error {
	// Bit 7 of register A enables temperature compensation.
	if err := h.write(RegConfigA, 0x80|h.cfg.Averaging|h.cfg.ODR|h.cfg.Bias); err != nil {
		return errConfigWrite
	}
	if err := h.write(RegConfigB, h.cfg.Gain); err != nil {
		return errConfigWrite
	}
	if err := h.write(RegMode, h.cfg.Mode); err != nil {
		return errConfigWrite
	}
	return nil
}

// read executes the canonical write-register-pointer / read-burst pattern
// as one locked bus operation.
func (h *HMC5983) read(reg byte, buf []byte) error {
	if err := h.validate(); err != nil {
		return err
	}
	if len(buf) == 0 || len(buf) > 255 {
		return errBadLength
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bus.ReadFromReg(Address, reg, buf)
}

// write sets a single device register.
func (h *HMC5983) write(reg, value byte) error {
	if err := h.validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bus.WriteToReg(Address, reg, []byte{value})
}

// readSample performs the combined data read and mode rewrite under one
// bus lock so the device is never left unarmed across a scheduling gap.
// The mode rewrite re-enters continuous mode (the part sometimes falls out
// of it on its own) or triggers the next conversion in single-shot mode.
func (h *HMC5983) readSample() (sensors.MagData, error) {
	var data sensors.MagData
	if err := h.validate(); err != nil {
		return data, err
	}

	buf := make([]byte, 8)
	if !h.cfg.Temperature {
		buf = buf[:6]
	}

	h.mu.Lock()
	err := h.bus.ReadFromReg(Address, RegDataXMSB, buf)
	if err == nil {
		err = h.bus.WriteToReg(Address, RegMode, []byte{h.cfg.Mode})
	}
	h.mu.Unlock()
	if err != nil {
		return data, err
	}

	sens := sensitivity(h.cfg.Gain)
	// The device bursts its axes in X, Z, Y order.
	mx := toMilligauss(rawCount(buf[0], buf[1]), sens)
	mz := toMilligauss(rawCount(buf[2], buf[3]), sens)
	my := toMilligauss(rawCount(buf[4], buf[5]), sens)

	data.X, data.Y, data.Z = Orientation(h.orientation.Load()).apply(mx, my, mz)

	if h.cfg.Temperature {
		data.Temperature = float64(uint16(buf[6])<<8|uint16(buf[7]))/128 + 25
	}
	return data, nil
}

// rawCount reconstructs a big-endian signed count from a register pair.
func rawCount(msb, lsb byte) int16 {
	return int16(uint16(msb)<<8 | uint16(lsb))
}

// toMilligauss scales a raw count by the gain sensitivity, truncating
// toward zero. The product needs 32 bits: ±2047 * 1000 overflows int16.
func toMilligauss(raw int16, sens uint16) int16 {
	return int16(int32(raw) * 1000 / int32(sens))
}

// run is the acquisition task. It spins until the device record is valid
// (it may be scheduled before New finishes), then samples forever: wait
// for data-ready or the next poll deadline, read and re-arm, publish.
// Bus failures drop the current sample; the task itself never fails.
func (h *HMC5983) run() {
	for h.validate() != nil {
		time.Sleep(initRetryDelay)
	}

	delay := samplePeriod(h.cfg.ODR)
	base := time.Now()

	for {
		if h.drdy != nil && h.cfg.Mode == ModeContinuous {
			select {
			case <-h.drdy:
			case <-h.quit:
				return
			}
		} else {
			select {
			case <-h.quit:
				return
			default:
			}
			sleepUntil(&base, delay)
		}

		data, err := h.readSample()
		if err != nil {
			continue
		}
		select {
		case h.queue <- data:
		default:
			// consumer lagging; drop rather than stall the sampling task
		}
	}
}

// sleepUntil advances base by one period and sleeps until that absolute
// deadline, so the long-run rate does not drift with scheduling jitter.
func sleepUntil(base *time.Time, d time.Duration) {
	*base = base.Add(d)
	time.Sleep(time.Until(*base))
}

// IRQHandler signals the acquisition task that the device asserted its
// data-ready line. It reports whether the task was readied; edges arriving
// while a previous signal is still pending coalesce.
func (h *HMC5983) IRQHandler() bool {
	if h.validate() != nil || h.drdy == nil {
		return false
	}
	select {
	case h.drdy <- struct{}{}:
		return true
	default:
		return false
	}
}

// SetOrientation updates the mounting orientation applied to subsequent
// samples. Safe to call while the acquisition task is running.
func (h *HMC5983) SetOrientation(o Orientation) error {
	if err := h.validate(); err != nil {
		return err
	}
	h.orientation.Store(int32(o))
	return nil
}

// SamplePeriod returns the polled-mode delay between samples.
func (h *HMC5983) SamplePeriod() (time.Duration, error) {
	if err := h.validate(); err != nil {
		return 0, err
	}
	return samplePeriod(h.cfg.ODR), nil
}

// ID reads the three identification register bytes.
func (h *HMC5983) ID() ([3]byte, error) {
	var id [3]byte
	err := h.read(RegIDA, id[:])
	return id, err
}

// SelfTest reads the identification registers and verifies the device
// answers with the ASCII string "H43".
func (h *HMC5983) SelfTest() error {
	id, err := h.ID()
	if err != nil {
		return err
	}
	if id[0] != 'H' || id[1] != '4' || id[2] != '3' {
		return errWrongID
	}
	return nil
}

// Status reads the device status register.
func (h *HMC5983) Status() (byte, error) {
	b := make([]byte, 1)
	if err := h.read(RegStatus, b); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Close stops the acquisition task and releases the data-ready pin. The
// device itself is left in its configured mode.
func (h *HMC5983) Close() {
	if h.validate() != nil {
		return
	}
	close(h.quit)
	if h.pin != nil {
		h.pin.StopWatching()
		h.pin.Close()
	}
}
