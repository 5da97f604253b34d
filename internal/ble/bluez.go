package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"parrotflower-gateway/internal/flower"
	"parrotflower-gateway/internal/utils"
)

const (
	bluezBus         = "org.bluez"
	bluezDevice      = "org.bluez.Device1"
	bluezGattChar    = "org.bluez.GattCharacteristic1"
	objectManagerGet = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"

	resolvePoll = 100 * time.Millisecond
)

// BlueZTransport reads characteristics through the BlueZ D-Bus API. The
// device must already be known to bluetoothd (seen in a scan or paired).
type BlueZTransport struct {
	conn           *dbus.Conn
	adapter        string
	connectTimeout time.Duration
	logger         *slog.Logger
}

func NewBlueZTransport(opts Options) (*BlueZTransport, error) {
	opts = opts.withDefaults()
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: system bus: %w", err)
	}
	return &BlueZTransport{
		conn:           conn,
		adapter:        opts.Adapter,
		connectTimeout: opts.ConnectTimeout,
		logger:         opts.Logger,
	}, nil
}

func blueZAvailable(opts Options) bool {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return false
	}
	defer conn.Close()
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return false
	}
	for _, n := range names {
		if n == bluezBus {
			return true
		}
	}
	return false
}

func (t *BlueZTransport) Close() error {
	return t.conn.Close()
}

// Connect connects the device and maps its characteristic value handles to
// D-Bus object paths. The link is torn down again if any step fails.
func (t *BlueZTransport) Connect(ctx context.Context, address string) (flower.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	devPath := devicePath(t.adapter, address)
	dev := t.conn.Object(bluezBus, devPath)

	if err := dev.CallWithContext(ctx, bluezDevice+".Connect", 0).Err; err != nil {
		return nil, fmt.Errorf("bluez connect %s: %w", address, err)
	}

	s := &bluezSession{t: t, address: address, dev: dev}
	if err := t.waitResolved(ctx, dev); err != nil {
		_ = s.Close()
		return nil, err
	}
	chars, err := t.characteristics(ctx, devPath)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.chars = chars

	t.logger.Debug("ble: connected", "addr", address, "characteristics", len(chars))
	return s, nil
}

func (t *BlueZTransport) waitResolved(ctx context.Context, dev dbus.BusObject) error {
	ticker := time.NewTicker(resolvePoll)
	defer ticker.Stop()
	for {
		v, err := dev.GetProperty(bluezDevice + ".ServicesResolved")
		if err != nil {
			return fmt.Errorf("bluez services resolved: %w", err)
		}
		if resolved, _ := v.Value().(bool); resolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("bluez services resolved: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (t *BlueZTransport) characteristics(ctx context.Context, devPath dbus.ObjectPath) (map[uint16]dbus.ObjectPath, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := t.conn.Object(bluezBus, "/").CallWithContext(ctx, objectManagerGet, 0).Store(&objects)
	if err != nil {
		return nil, fmt.Errorf("bluez managed objects: %w", err)
	}

	chars := make(map[uint16]dbus.ObjectPath)
	prefix := string(devPath) + "/"
	for p, ifaces := range objects {
		if !strings.HasPrefix(string(p), prefix) {
			continue
		}
		if _, ok := ifaces[bluezGattChar]; !ok {
			continue
		}
		if h, ok := valueHandleFromPath(string(p)); ok {
			chars[h] = p
		}
	}
	return chars, nil
}

type bluezSession struct {
	t       *BlueZTransport
	address string
	dev     dbus.BusObject
	chars   map[uint16]dbus.ObjectPath
}

func (s *bluezSession) Read(ctx context.Context, handle uint16) ([]byte, error) {
	p, ok := s.chars[handle]
	if !ok {
		return nil, fmt.Errorf("%w 0x%s on %s", ErrInvalidHandle, utils.Hex4(handle), s.address)
	}
	var value []byte
	err := s.t.conn.Object(bluezBus, p).
		CallWithContext(ctx, bluezGattChar+".ReadValue", 0, map[string]dbus.Variant{}).
		Store(&value)
	if err != nil {
		return nil, fmt.Errorf("bluez read 0x%s: %w", utils.Hex4(handle), err)
	}
	return value, nil
}

func (s *bluezSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.dev.CallWithContext(ctx, bluezDevice+".Disconnect", 0).Err; err != nil {
		var dbusErr dbus.Error
		if errors.As(err, &dbusErr) && dbusErr.Name == "org.bluez.Error.NotConnected" {
			return nil
		}
		return fmt.Errorf("bluez disconnect %s: %w", s.address, err)
	}
	return nil
}

// devicePath maps "A0:14:3D:01:02:03" to /org/bluez/hci0/dev_A0_14_3D_01_02_03.
func devicePath(adapter, address string) dbus.ObjectPath {
	dev := "dev_" + strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath("/org/bluez/" + adapter + "/" + dev)
}

// valueHandleFromPath derives the value handle from a characteristic path
// such as .../service0030/char0030. BlueZ names the object after the
// declaration handle; the value attribute always follows it.
func valueHandleFromPath(p string) (uint16, bool) {
	base := path.Base(p)
	if !strings.HasPrefix(base, "char") || len(base) != len("char")+4 {
		return 0, false
	}
	decl, err := strconv.ParseUint(base[len("char"):], 16, 16)
	if err != nil || decl == 0xFFFF {
		return 0, false
	}
	return uint16(decl) + 1, true
}
