package location

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"mappls-navigation/internal/navigation"
)

const (
	DefaultBaudRate = 9600
	DefaultMaxHDOP  = 5.0

	readTimeout = 200 * time.Millisecond
	maxLineLen  = 256
)

// NMEAConfig holds configuration for a serial NMEA 0183 receiver.
type NMEAConfig struct {
	PortPath string
	BaudRate int
	// MaxHDOP is the largest horizontal dilution accepted for high accuracy fixes.
	MaxHDOP float64
}

// Reading is the receiver state assembled from RMC and GGA sentences.
type Reading struct {
	Valid     bool
	Latitude  float64
	Longitude float64
	Heading   *float64
	Quality   int
	HDOP      float64
	HasGGA    bool
	At        time.Time
}

type nmeaSub struct {
	opts    navigation.PositionOptions
	onFix   func(navigation.GeoFix)
	onError func(error)
	once    bool
	gen     int
	timer   navigation.Timer
}

type delivery struct {
	fix navigation.GeoFix
	err error
	sub *nmeaSub
}

// NMEA is a location provider fed by a GPS receiver speaking NMEA 0183.
type NMEA struct {
	src     io.Reader
	closer  io.Closer
	clock   navigation.Clock
	logger  *slog.Logger
	maxHDOP float64

	mu      sync.Mutex
	reading Reading
	nextID  int
	subs    map[int]*nmeaSub
	failed  error
}

var _ navigation.LocationProvider = (*NMEA)(nil)

// OpenNMEA opens the serial port described by cfg.
func OpenNMEA(cfg NMEAConfig, clock navigation.Clock, logger *slog.Logger) (*NMEA, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("gps: failed to open %s: %w", cfg.PortPath, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("gps: failed to set read timeout: %w", err)
	}
	logger.Info("gps connected", "port", cfg.PortPath, "baud", cfg.BaudRate)
	return NewNMEA(port, cfg.MaxHDOP, clock, logger), nil
}

// NewNMEA reads sentences from src. If src is an io.Closer it is closed by Close.
func NewNMEA(src io.Reader, maxHDOP float64, clock navigation.Clock, logger *slog.Logger) *NMEA {
	if maxHDOP <= 0 {
		maxHDOP = DefaultMaxHDOP
	}
	n := &NMEA{
		src:     src,
		clock:   clock,
		logger:  logger,
		maxHDOP: maxHDOP,
		subs:    make(map[int]*nmeaSub),
	}
	if c, ok := src.(io.Closer); ok {
		n.closer = c
	}
	return n
}

func (n *NMEA) Close() error {
	if n.closer != nil {
		return n.closer.Close()
	}
	return nil
}

// Run reads the receiver until ctx is done or the source fails. A failure
// is reported to every subscriber as ErrPositionUnavailable.
func (n *NMEA) Run(ctx context.Context) error {
	buf := make([]byte, maxLineLen)
	var pending []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := n.src.Read(buf)
		if count > 0 {
			pending = append(pending, buf[:count]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				n.handleLine(string(pending[:i]))
				pending = pending[i+1:]
			}
			if len(pending) > maxLineLen {
				pending = pending[:0]
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.fail(err)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("gps: read failed: %w", err)
		}
	}
}

func (n *NMEA) fail(cause error) {
	n.logger.Warn("gps source failed", "error", cause)
	err := fmt.Errorf("%w: %w", navigation.ErrPositionUnavailable, cause)

	n.mu.Lock()
	n.failed = err
	var out []delivery
	for id, sub := range n.subs {
		if sub.timer != nil {
			sub.timer.Stop()
		}
		delete(n.subs, id)
		out = append(out, delivery{err: err, sub: sub})
	}
	n.mu.Unlock()

	for _, d := range out {
		d.sub.onError(d.err)
	}
}

func (n *NMEA) handleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") || !validateNMEAChecksum(line) {
		return
	}
	parts := splitNMEA(line)
	if len(parts[0]) < 5 {
		return
	}

	switch parts[0][2:] {
	case "GGA":
		n.mu.Lock()
		parseGGA(parts, &n.reading)
		n.mu.Unlock()
	case "RMC":
		n.mu.Lock()
		if !parseRMC(parts, &n.reading) {
			n.mu.Unlock()
			return
		}
		n.reading.At = n.clock.Now()
		out := n.collect()
		n.mu.Unlock()

		for _, d := range out {
			d.sub.onFix(d.fix)
		}
	}
}

// accurate reports whether the current reading satisfies a high accuracy request.
func (n *NMEA) accurate() bool {
	r := n.reading
	return r.HasGGA && r.Quality >= 1 && r.HDOP > 0 && r.HDOP <= n.maxHDOP
}

func (n *NMEA) fix() navigation.GeoFix {
	return navigation.GeoFix{Latitude: n.reading.Latitude, Longitude: n.reading.Longitude, Heading: n.reading.Heading}
}

// collect gathers deliveries for the current reading. Must hold mu.
func (n *NMEA) collect() []delivery {
	accurate := n.accurate()
	fix := n.fix()
	var out []delivery
	for id, sub := range n.subs {
		if sub.opts.EnableHighAccuracy && !accurate {
			continue
		}
		if sub.once {
			if sub.timer != nil {
				sub.timer.Stop()
			}
			delete(n.subs, id)
		} else {
			n.arm(id, sub)
		}
		out = append(out, delivery{fix: fix, sub: sub})
	}
	return out
}

// arm (re)starts the timeout of sub. Must hold mu.
func (n *NMEA) arm(id int, sub *nmeaSub) {
	if sub.timer != nil {
		sub.timer.Stop()
		sub.timer = nil
	}
	if sub.opts.Timeout <= 0 {
		return
	}
	sub.gen++
	gen := sub.gen
	sub.timer = n.clock.AfterFunc(sub.opts.Timeout, func() {
		n.mu.Lock()
		if n.subs[id] != sub || sub.gen != gen {
			n.mu.Unlock()
			return
		}
		sub.timer = nil
		if sub.once {
			delete(n.subs, id)
		}
		n.mu.Unlock()
		sub.onError(navigation.ErrTimeout)
	})
}

func (n *NMEA) register(sub *nmeaSub) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failed != nil {
		return 0, n.failed
	}
	n.nextID++
	n.subs[n.nextID] = sub
	n.arm(n.nextID, sub)
	return n.nextID, nil
}

func (n *NMEA) CurrentPosition(opts navigation.PositionOptions, onFix func(navigation.GeoFix), onError func(error)) {
	n.mu.Lock()
	if opts.MaximumAge > 0 && n.reading.Valid && n.clock.Now().Sub(n.reading.At) <= opts.MaximumAge &&
		(!opts.EnableHighAccuracy || n.accurate()) {
		fix := n.fix()
		n.mu.Unlock()
		onFix(fix)
		return
	}
	n.mu.Unlock()

	if _, err := n.register(&nmeaSub{opts: opts, onFix: onFix, onError: onError, once: true}); err != nil {
		onError(err)
	}
}

func (n *NMEA) Watch(opts navigation.PositionOptions, onFix func(navigation.GeoFix), onError func(error)) (int, error) {
	return n.register(&nmeaSub{opts: opts, onFix: onFix, onError: onError})
}

func (n *NMEA) ClearWatch(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subs[id]; ok {
		if sub.timer != nil {
			sub.timer.Stop()
		}
		delete(n.subs, id)
	}
}

// parseRMC updates r from $--RMC and reports whether it carried a valid fix.
// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a*hh
func parseRMC(parts []string, r *Reading) bool {
	if len(parts) < 10 {
		return false
	}
	r.Valid = parts[2] == "A"
	if !r.Valid {
		return false
	}
	lat, okLat := parseNMEACoord(parts[3], parts[4])
	lon, okLon := parseNMEACoord(parts[5], parts[6])
	if !okLat || !okLon {
		r.Valid = false
		return false
	}
	r.Latitude, r.Longitude = lat, lon
	r.Heading = nil
	if hdg, err := strconv.ParseFloat(parts[8], 64); err == nil {
		r.Heading = &hdg
	}
	return true
}

// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,x,xx,x.x,x.x,M,x.x,M,x.x,xxxx*hh
func parseGGA(parts []string, r *Reading) {
	if len(parts) < 11 {
		return
	}
	r.HasGGA = true
	r.Quality = 0
	r.HDOP = 0
	if q, err := strconv.Atoi(parts[6]); err == nil {
		r.Quality = q
	}
	if hdop, err := strconv.ParseFloat(parts[8], 64); err == nil {
		r.HDOP = hdop
	}
}

// splitNMEA splits a sentence and strips the checksum suffix.
func splitNMEA(line string) []string {
	if idx := strings.Index(line, "*"); idx >= 0 {
		line = line[:idx]
	}
	return strings.Split(strings.TrimPrefix(line, "$"), ",")
}

// parseNMEACoord converts NMEA ddmm.mmmm format to decimal degrees.
func parseNMEACoord(raw, dir string) (float64, bool) {
	if raw == "" || dir == "" {
		return 0, false
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	deg := math.Floor(val / 100)
	result := deg + (val-deg*100)/60

	switch dir {
	case "N", "E":
	case "S", "W":
		result = -result
	default:
		return 0, false
	}
	return result, true
}

// validateNMEAChecksum checks the XOR checksum after *.
func validateNMEAChecksum(line string) bool {
	idx := strings.Index(line, "*")
	if idx < 1 || idx+3 > len(line) {
		return false
	}
	body := line[1:idx]
	var calc byte
	for i := 0; i < len(body); i++ {
		calc ^= body[i]
	}
	expected, err := strconv.ParseUint(line[idx+1:idx+3], 16, 8)
	if err != nil {
		return false
	}
	return byte(expected) == calc
}
