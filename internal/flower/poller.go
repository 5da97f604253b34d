package flower

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"parrotflower-gateway/internal/utils"
)

var addressRe = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// ValidAddress reports whether s is a colon separated 6 byte hex address.
func ValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

type Options struct {
	Profile            *Profile      // ProfileFlowerPower if nil
	CacheTTL           time.Duration // DefaultCacheTTL if zero
	FailureRetryOffset time.Duration // DefaultFailureRetryOffset if zero
	ReadTimeout        time.Duration // DefaultReadTimeout if zero
	Now                func() time.Time
	Logger             *slog.Logger
}

// Reading is a complete set of decoded values from one refresh.
type Reading struct {
	Address string
	Model   string
	Time    time.Time
	Values  map[Parameter]float64
}

// Poller reads one sensor and caches its values. At most one refresh is in
// flight per Poller; distinct Pollers never block each other.
type Poller struct {
	address     string
	transport   Transport
	profile     *Profile
	readTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu    sync.Mutex
	cache *sensorCache
}

func NewPoller(address string, transport Transport, opts Options) (*Poller, error) {
	if !ValidAddress(address) {
		return nil, fmt.Errorf("invalid device address %q", address)
	}
	if transport == nil {
		return nil, fmt.Errorf("nil transport for %s", address)
	}
	if opts.Profile == nil {
		opts.Profile = ProfileFlowerPower
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.FailureRetryOffset <= 0 {
		opts.FailureRetryOffset = DefaultFailureRetryOffset
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Poller{
		address:     address,
		transport:   transport,
		profile:     opts.Profile,
		readTimeout: opts.ReadTimeout,
		now:         opts.Now,
		logger:      opts.Logger.With("addr", address, "model", opts.Profile.Model),
		cache:       newSensorCache(opts.CacheTTL, opts.FailureRetryOffset),
	}, nil
}

func (p *Poller) Address() string   { return p.address }
func (p *Poller) Profile() *Profile { return p.profile }

// Name reads the device name. It bypasses the cache.
func (p *Poller) Name(ctx context.Context) (string, error) {
	b, err := p.readOne(ctx, p.profile.NameHandle)
	if err != nil {
		return "", err
	}
	name, err := DecodeASCIITrim(b, p.profile.NameTrailingStrip)
	if err != nil {
		return "", withHandle(err, p.profile.NameHandle)
	}
	return name, nil
}

// FirmwareVersion reads the firmware revision. It bypasses the cache.
func (p *Poller) FirmwareVersion(ctx context.Context) (string, error) {
	b, err := p.readOne(ctx, p.profile.VersionHandle)
	if err != nil {
		return "", err
	}
	v, err := DecodeFirmware(b)
	if err != nil {
		return "", withHandle(err, p.profile.VersionHandle)
	}
	return v, nil
}

// ParameterValue returns one value, refreshing the cache first if it is
// missing, expired, or allowCached is false.
func (p *Poller) ParameterValue(ctx context.Context, param Parameter, allowCached bool) (float64, error) {
	if !p.profile.Has(param) {
		return 0, fmt.Errorf("%w %q for %s", ErrUnknownParameter, param, p.profile.Model)
	}
	r, err := p.Readings(ctx, allowCached)
	if err != nil {
		return 0, err
	}
	return r.Values[param], nil
}

// Readings returns a copy of every cached value, refreshing under the same
// rules as ParameterValue.
func (p *Poller) Readings(ctx context.Context, allowCached bool) (Reading, error) {
	p.mu.Lock()
	var refreshErr error
	now := p.now()
	if !allowCached || p.cache.expired(now) {
		refreshErr = p.fill(ctx, now)
	} else {
		p.logger.Debug("flower: using cache",
			"age", now.Sub(p.cache.lastSuccess),
			"ttl", p.cache.ttl,
		)
	}
	values := p.cache.snapshot()
	ts := p.cache.lastSuccess
	p.mu.Unlock()

	if values == nil {
		return Reading{}, &NoDataError{Address: p.address, Err: refreshErr}
	}
	return Reading{
		Address: p.address,
		Model:   p.profile.Model,
		Time:    ts,
		Values:  values,
	}, nil
}

// Invalidate drops cached values; the next read always refreshes.
func (p *Poller) Invalidate() {
	p.mu.Lock()
	p.cache.clear()
	p.mu.Unlock()
}

// fill performs one refresh. Callers hold p.mu.
func (p *Poller) fill(ctx context.Context, now time.Time) error {
	p.logger.Debug("flower: filling cache with new sensor data")

	values, err := p.readAll(ctx)
	if err != nil {
		p.cache.fail(now)
		p.logger.Warn("flower: refresh failed",
			"error", err,
			"retry_after", p.cache.failureRetryOffset,
		)
		return err
	}

	p.cache.commit(values, now)
	p.logger.Debug("flower: cache filled", "values", values)
	return nil
}

func (p *Poller) readAll(ctx context.Context) (map[Parameter]float64, error) {
	sess, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer p.closeSession(sess)

	values := make(map[Parameter]float64, len(p.profile.Parameters))
	for _, b := range p.profile.Parameters {
		raw, err := p.read(ctx, sess, b.Handle)
		if err != nil {
			return nil, err
		}
		v, err := b.Decode(raw)
		if err != nil {
			return nil, withHandle(err, b.Handle)
		}
		values[b.Parameter] = v
	}
	return values, nil
}

func (p *Poller) readOne(ctx context.Context, handle uint16) ([]byte, error) {
	sess, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer p.closeSession(sess)
	return p.read(ctx, sess, handle)
}

func (p *Poller) connect(ctx context.Context) (Session, error) {
	sess, err := p.transport.Connect(ctx, p.address)
	if err != nil {
		return nil, &TransportError{Address: p.address, Err: err}
	}
	return sess, nil
}

func (p *Poller) read(ctx context.Context, sess Session, handle uint16) ([]byte, error) {
	rctx, cancel := context.WithTimeout(ctx, p.readTimeout)
	defer cancel()

	b, err := sess.Read(rctx, handle)
	if err != nil {
		return nil, &TransportError{Address: p.address, Handle: handle, Err: err}
	}
	if len(b) == 0 {
		return nil, &TransportError{Address: p.address, Handle: handle, Err: ErrEmptyRead}
	}
	p.logger.Debug("flower: read", "handle", "0x"+utils.Hex4(handle), "data", utils.BytesToHex(b))
	return b, nil
}

func (p *Poller) closeSession(sess Session) {
	if err := sess.Close(); err != nil {
		p.logger.Warn("flower: close session", "error", err)
	}
}

func withHandle(err error, handle uint16) error {
	if pe, ok := err.(*ParseError); ok {
		cp := *pe
		cp.Handle = handle
		return &cp
	}
	return err
}
