package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	_ "github.com/kidoman/embd/host/rpi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/takama/daemon"

	"github.com/Cro2230/dRonin/common"
	"github.com/Cro2230/dRonin/sensors"
	"github.com/Cro2230/dRonin/sensors/hmc5983"
)

// Initialize Prometheus metrics.
var (
	magFieldX = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mag_field_x_milligauss",
		Help: "Board-frame X field.",
	})

	magFieldY = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mag_field_y_milligauss",
		Help: "Board-frame Y field.",
	})

	magFieldZ = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mag_field_z_milligauss",
		Help: "Board-frame Z field.",
	})

	magFieldStrength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mag_field_strength_milligauss",
		Help: "Field magnitude.",
	})

	magTemperature = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mag_temperature_celsius",
		Help: "Sensor die temperature.",
	})

	totalSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "total_samples",
			Help: "Total magnetometer samples received.",
		},
		[]string{"all"},
	)

	totalUptime = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "total_uptime",
			Help: "Total uptime.",
		},
		[]string{"all"},
	)
)

const (
	configLocation = "/etc/magsensor.conf"

	// name of the service
	name        = "magsensord"
	description = "magnetometer sampling and field monitoring service"

	// Address on which daemon should be listen.
	addr = ":9978"
)

// MagSensorSettings is the JSON settings file contents. Physical units;
// translated to register codes at startup.
type MagSensorSettings struct {
	BusNumber   int
	ODRHz       float64
	GainGa      float64
	Mode        string
	Orientation string
	Averaging   int
	Temperature bool
	DRDYPin     int
}

type magStatus struct {
	Settings       MagSensorSettings
	LastSample     sensors.MagData
	LastSampleAge  string
	SamplesTotal   uint64
	lastSampleTime time.Time
}

var (
	mySettings = MagSensorSettings{
		BusNumber:   1,
		ODRHz:       15,
		GainGa:      1.3,
		Mode:        "continuous",
		Orientation: "TOP_0",
		Averaging:   1,
		DRDYPin:     -1,
	}
	myStatus   magStatus
	statusMu   sync.Mutex
	magClock   = common.NewMonotonic()
	magDev     *hmc5983.HMC5983
	configFile string
)

var stdlog, errlog *log.Logger

func readSettings() {
	fd, err := os.Open(configFile)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configFile, err.Error())
		return
	}
	defer fd.Close()
	buf := make([]byte, 4096)
	count, err := fd.Read(buf)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configFile, err.Error())
		return
	}
	err = json.Unmarshal(buf[0:count], &mySettings)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configFile, err.Error())
		return
	}
	log.Printf("read in settings.\n")
}

// settingsToConfig translates the physical-unit settings into register
// codes for the driver.
func settingsToConfig(s MagSensorSettings) (hmc5983.Config, error) {
	var cfg hmc5983.Config
	var err error

	if cfg.ODR, err = hmc5983.ODRFromHz(s.ODRHz); err != nil {
		return cfg, err
	}
	if cfg.Gain, err = hmc5983.GainFromGauss(s.GainGa); err != nil {
		return cfg, err
	}
	if cfg.Mode, err = hmc5983.ModeFromName(s.Mode); err != nil {
		return cfg, err
	}
	if cfg.Averaging, err = hmc5983.AveragingFromSamples(s.Averaging); err != nil {
		return cfg, err
	}
	if cfg.Orientation, err = hmc5983.OrientationFromName(s.Orientation); err != nil {
		return cfg, err
	}
	cfg.Bias = hmc5983.BiasNormal
	cfg.Temperature = s.Temperature
	cfg.DRDYPin = s.DRDYPin
	return cfg, nil
}

func updateStats() {
	updateTicker := time.NewTicker(1 * time.Second)
	for {
		<-updateTicker.C
		totalUptime.With(prometheus.Labels{"all": "all"}).Inc()
	}
}

// consumeSamples is the downstream consumer of the magnetometer queue. It
// keeps the status snapshot and metrics current.
func consumeSamples(queue <-chan sensors.MagData) {
	for data := range queue {
		magFieldX.Set(float64(data.X))
		magFieldY.Set(float64(data.Y))
		magFieldZ.Set(float64(data.Z))
		x, y, z := float64(data.X), float64(data.Y), float64(data.Z)
		magFieldStrength.Set(math.Sqrt(x*x + y*y + z*z))
		if mySettings.Temperature {
			magTemperature.Set(data.Temperature)
		}
		totalSamples.With(prometheus.Labels{"all": "all"}).Inc()

		statusMu.Lock()
		myStatus.LastSample = data
		myStatus.lastSampleTime = magClock.Time
		myStatus.SamplesTotal++
		statusMu.Unlock()
	}
}

func magSensor() error {
	readSettings()

	cfg, err := settingsToConfig(mySettings)
	if err != nil {
		return err
	}

	i2cbus := embd.NewI2CBus(byte(mySettings.BusNumber))

	magDev, err = hmc5983.New(i2cbus, cfg)
	if err != nil {
		return err
	}

	// A wrong ID is reported but does not prevent operation; some clone
	// parts answer with a different string and still measure.
	if err := magDev.SelfTest(); err != nil {
		log.Printf("Mag Warning: %s\n", err)
	}

	queue, ok := sensors.MagQueue()
	if !ok {
		return fmt.Errorf("magnetometer queue was not registered")
	}

	prometheus.MustRegister(magFieldX)
	prometheus.MustRegister(magFieldY)
	prometheus.MustRegister(magFieldZ)
	prometheus.MustRegister(magFieldStrength)
	prometheus.MustRegister(magTemperature)
	prometheus.MustRegister(totalSamples)
	prometheus.MustRegister(totalUptime)

	go consumeSamples(queue)
	go updateStats()
	return nil
}

// Service has embedded daemon
type Service struct {
	daemon.Daemon
}

// Manage by daemon commands or run the daemon
func (service *Service) Manage() (string, error) {

	config := flag.String("c", configLocation, "Settings file location")
	flag.Parse()
	configFile = *config

	usage := "Usage: " + name + " install | remove | start | stop | status"
	// if received any kind of command, do it
	if flag.NArg() > 0 {
		command := flag.Arg(0)
		switch command {
		case "install":
			if !common.IsRunningAsRoot() {
				return usage, fmt.Errorf("install requires root")
			}
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	if err := magSensor(); err != nil {
		return "Couldn't start magnetometer sampling", err
	}

	// Set up channel on which to send signal notifications.
	// We must use a buffered channel or risk missing the signal
	// if we're not ready to receive when the signal is sent.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	http.HandleFunc("/", handleStatusRequest)
	http.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(addr, nil)

	// interrupt by system signal
	for {
		killSignal := <-interrupt
		log.Println("Got signal:", killSignal)
		if killSignal == syscall.SIGINT {
			return "Daemon was interrupted by system signal", nil
		} else if killSignal == syscall.SIGUSR1 {
			// Re-read settings; only the orientation can change at
			// runtime, everything else needs a restart.
			readSettings()
			if o, err := hmc5983.OrientationFromName(mySettings.Orientation); err == nil {
				magDev.SetOrientation(o)
			} else {
				log.Printf("Mag Warning: %s\n", err)
			}
		} else {
			return "Daemon was killed", nil
		}
	}
}

func handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	statusMu.Lock()
	status := myStatus
	status.Settings = mySettings
	if !status.lastSampleTime.IsZero() {
		status.LastSampleAge = magClock.HumanizeTime(status.lastSampleTime)
	}
	statusMu.Unlock()
	statusJSON, _ := json.Marshal(&status)
	w.Write(statusJSON)
}

func init() {
	stdlog = log.New(os.Stdout, "", 0)
	errlog = log.New(os.Stderr, "", 0)
}

func main() {
	srv, err := daemon.New(name, description, daemon.SystemDaemon)
	if err != nil {
		errlog.Println("Error: ", err)
		os.Exit(1)
	}
	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		errlog.Println(status, "\nError: ", err)
		os.Exit(1)
	}
	fmt.Println(status)
}
