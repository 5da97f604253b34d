package ble

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"parrotflower-gateway/internal/flower"
	"parrotflower-gateway/internal/utils"
)

// GatttoolTransport shells out to BlueZ's gatttool for every read. There is
// no persistent link; a session only remembers the address.
type GatttoolTransport struct {
	path    string
	adapter string
	logger  *slog.Logger
}

func NewGatttoolTransport(opts Options) *GatttoolTransport {
	opts = opts.withDefaults()
	return &GatttoolTransport{
		path:    opts.GatttoolPath,
		adapter: opts.Adapter,
		logger:  opts.Logger,
	}
}

func gatttoolAvailable(opts Options) bool {
	_, err := exec.LookPath(opts.withDefaults().GatttoolPath)
	return err == nil
}

func (t *GatttoolTransport) Connect(ctx context.Context, address string) (flower.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &gatttoolSession{t: t, address: address}, nil
}

func (t *GatttoolTransport) Close() error { return nil }

type gatttoolSession struct {
	t       *GatttoolTransport
	address string
}

func (s *gatttoolSession) Read(ctx context.Context, handle uint16) ([]byte, error) {
	args := []string{
		"--device=" + s.address,
		"--adapter=" + s.t.adapter,
		"--char-read",
		"-a", "0x" + utils.Hex4(handle),
	}
	out, err := exec.CommandContext(ctx, s.t.path, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gatttool read 0x%s: %w", utils.Hex4(handle), ctx.Err())
		}
		return nil, fmt.Errorf("gatttool read 0x%s: %w: %s",
			utils.Hex4(handle), err, strings.TrimSpace(string(out)))
	}
	s.t.logger.Debug("ble: gatttool output", "addr", s.address, "handle", utils.Hex4(handle), "out", string(out))
	return parseCharRead(string(out))
}

func (s *gatttoolSession) Close() error { return nil }

// parseCharRead extracts the payload from gatttool --char-read output:
//
//	Characteristic value/descriptor: 4d 00
func parseCharRead(out string) ([]byte, error) {
	const marker = "Characteristic value/descriptor:"
	for _, line := range strings.Split(out, "\n") {
		_, value, ok := strings.Cut(line, marker)
		if !ok {
			continue
		}
		return utils.ParseSpacedHex(value)
	}
	if strings.Contains(out, "Invalid handle") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, strings.TrimSpace(out))
	}
	return nil, fmt.Errorf("unexpected gatttool output %q", strings.TrimSpace(out))
}
