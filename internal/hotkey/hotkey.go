// Package hotkey watches Linux input devices for presses of one configured
// key, the window-mode counterpart to the proxy's in-band trigger sequence.
// It reads evdev events directly so the hotkey works on X11 and Wayland
// alike, at the cost of needing read access to /dev/input.
package hotkey

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

const (
	// eventSize is sizeof(struct input_event) on 64-bit Linux: a 16-byte
	// timeval followed by type, code, and value.
	eventSize = 24

	evKey         = 0x01
	keyValuePress = 1
)

// ErrNoDevices indicates no readable keyboard advertises the configured key.
var ErrNoDevices = errors.New("no input device delivers the hotkey")

// Monitor streams one signal per press of the configured keycode, merged
// across every device that advertises the key.
type Monitor struct {
	cfg    config.HotkeyConfig
	logger *slog.Logger

	events chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	devices []*os.File
	closed  bool
}

// New builds a monitor; Start opens the devices.
func New(cfg config.HotkeyConfig, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		cfg:    cfg,
		logger: logger,
		events: make(chan struct{}, 4),
	}
}

// Events delivers one value per key press. Presses arriving while the
// channel is full are dropped; the session treats rapid repeats as one
// toggle anyway.
func (m *Monitor) Events() <-chan struct{} { return m.events }

// Start opens the configured or discovered devices and begins reading.
func (m *Monitor) Start(ctx context.Context) error {
	paths := m.cfg.Devices
	if len(paths) == 0 {
		discovered, err := DiscoverDevices("/sys/class/input", "/dev/input", m.cfg.Keycode)
		if err != nil {
			return err
		}
		paths = discovered
	}

	var opened []*os.File
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			m.logger.Warn("input device unreadable", "device", path, "error", err.Error())
			continue
		}
		opened = append(opened, f)
	}
	if len(opened) == 0 {
		return fmt.Errorf("%w (keycode %d)", ErrNoDevices, m.cfg.Keycode)
	}

	m.mu.Lock()
	m.devices = opened
	m.mu.Unlock()

	for _, f := range opened {
		m.wg.Add(1)
		go m.readDevice(ctx, f)
	}

	m.logger.Info("hotkey monitor started", "keycode", m.cfg.Keycode, "devices", len(opened))
	return nil
}

// Close stops all device readers. Safe to call more than once.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	devices := m.devices
	m.mu.Unlock()

	for _, f := range devices {
		_ = f.Close()
	}
	m.wg.Wait()
	return nil
}

// readDevice decodes the evdev stream from one device and forwards presses
// of the configured keycode.
func (m *Monitor) readDevice(ctx context.Context, f *os.File) {
	defer m.wg.Done()

	buf := make([]byte, eventSize*32)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			typ, code, value := decodeEvent(buf[off : off+eventSize])
			if typ != evKey || int(code) != m.cfg.Keycode || value != keyValuePress {
				continue
			}
			select {
			case m.events <- struct{}{}:
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

// decodeEvent unpacks type, code, and value from one raw input_event.
func decodeEvent(b []byte) (typ uint16, code uint16, value int32) {
	typ = binary.LittleEndian.Uint16(b[16:18])
	code = binary.LittleEndian.Uint16(b[18:20])
	value = int32(binary.LittleEndian.Uint32(b[20:24]))
	return typ, code, value
}

// DiscoverDevices scans sysfs for event devices whose key capability bitmap
// includes keycode and returns their /dev/input paths. The sysfs bitmap is
// a space-separated list of hex words, most significant word first.
func DiscoverDevices(sysRoot, devRoot string, keycode int) ([]string, error) {
	pattern := filepath.Join(sysRoot, "event*", "device", "capabilities", "key")
	capFiles, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", sysRoot, err)
	}

	var devices []string
	for _, capFile := range capFiles {
		raw, err := os.ReadFile(capFile)
		if err != nil {
			continue
		}
		words, err := parseKeyBitmap(string(raw))
		if err != nil {
			continue
		}
		if !supportsKey(words, keycode) {
			continue
		}
		// /sys/class/input/eventN/... maps to /dev/input/eventN.
		eventName := filepath.Base(filepath.Dir(filepath.Dir(filepath.Dir(capFile))))
		devices = append(devices, filepath.Join(devRoot, eventName))
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("%w (keycode %d)", ErrNoDevices, keycode)
	}
	return devices, nil
}

// parseKeyBitmap parses the sysfs capability line into 64-bit words, most
// significant first as listed in the file.
func parseKeyBitmap(raw string) ([]uint64, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, errors.New("empty capability bitmap")
	}
	words := make([]uint64, len(fields))
	for i, field := range fields {
		var word uint64
		if _, err := fmt.Sscanf(field, "%x", &word); err != nil {
			return nil, fmt.Errorf("parse capability word %q: %w", field, err)
		}
		words[i] = word
	}
	return words, nil
}

// supportsKey reports whether the bitmap has keycode's bit set. Word 0 of
// the keycode space is the last word in the slice.
func supportsKey(words []uint64, keycode int) bool {
	if keycode < 0 {
		return false
	}
	wordFromRight := keycode / 64
	idx := len(words) - 1 - wordFromRight
	if idx < 0 {
		return false
	}
	return words[idx]&(1<<uint(keycode%64)) != 0
}
