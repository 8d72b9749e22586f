package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// UnknownDevice is hashed when no device signal at all can be read.
const UnknownDevice = "unknown"

// FactorSource reads one device signal. Sources are consulted in order and a
// failing source is skipped.
type FactorSource struct {
	Name string
	Read func() (string, error)
}

// DeviceFingerprint represents device identification information
type DeviceFingerprint struct {
	Fingerprint string            `json:"fingerprint"`
	Factors     map[string]string `json:"factors"`
	Fallback    bool              `json:"fallback"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// FingerprintManager derives a stable device identifier and caches it for
// the lifetime of the process.
type FingerprintManager struct {
	sources  []FactorSource
	nodeName func() (string, error)
	logger   *slog.Logger

	once  sync.Once
	cache *DeviceFingerprint
}

// FingerprintOption configures a FingerprintManager
type FingerprintOption func(*FingerprintManager)

// WithSources replaces the default device signal sources.
func WithSources(sources ...FactorSource) FingerprintOption {
	return func(fm *FingerprintManager) {
		fm.sources = sources
	}
}

// WithNodeName replaces the node name fallback used when no source yields a value.
func WithNodeName(fn func() (string, error)) FingerprintOption {
	return func(fm *FingerprintManager) {
		fm.nodeName = fn
	}
}

// WithLogger sets the logger used for fingerprint diagnostics.
func WithLogger(logger *slog.Logger) FingerprintOption {
	return func(fm *FingerprintManager) {
		fm.logger = logger
	}
}

// NewFingerprintManager creates a new fingerprint manager. The default
// sources are, in order: MAC address, hostname, platform, disk serial.
func NewFingerprintManager(opts ...FingerprintOption) *FingerprintManager {
	fm := &FingerprintManager{
		nodeName: NodeName,
		logger:   slog.Default(),
	}
	fm.sources = []FactorSource{
		{Name: "mac_address", Read: GetMACAddress},
		{Name: "hostname", Read: GetHostname},
		{Name: "platform", Read: GetPlatform},
		{Name: "disk_serial", Read: GetDiskSerial},
	}
	for _, opt := range opts {
		opt(fm)
	}
	return fm
}

// Fingerprint returns the hex SHA-256 device fingerprint. It never fails.
func (fm *FingerprintManager) Fingerprint() string {
	return fm.Generate().Fingerprint
}

// Generate computes the fingerprint once and returns a copy of the cached value.
func (fm *FingerprintManager) Generate() *DeviceFingerprint {
	fm.once.Do(func() {
		fm.cache = fm.compute()
	})

	fp := *fm.cache
	fp.Factors = make(map[string]string, len(fm.cache.Factors))
	for k, v := range fm.cache.Factors {
		fp.Factors[k] = v
	}
	return &fp
}

// Matches reports whether fingerprint equals the current device fingerprint.
func (fm *FingerprintManager) Matches(fingerprint string) bool {
	return fingerprint != "" && fingerprint == fm.Fingerprint()
}

// MaskedFactors returns the collected signals with their values masked, for
// diagnostics output.
func (fm *FingerprintManager) MaskedFactors() map[string]string {
	fp := fm.Generate()
	masked := make(map[string]string, len(fp.Factors))
	for k, v := range fp.Factors {
		masked[k] = maskFactor(v)
	}
	return masked
}

func (fm *FingerprintManager) compute() *DeviceFingerprint {
	start := time.Now()

	factors := make(map[string]string, len(fm.sources))
	parts := make([]string, 0, len(fm.sources))
	for _, src := range fm.sources {
		value, err := safeRead(src.Read)
		if err != nil || value == "" {
			fm.logger.Debug("Fingerprint source unavailable",
				slog.String("source", src.Name),
				slog.Any("error", err))
			continue
		}
		factors[src.Name] = value
		parts = append(parts, value)
	}

	fallback := false
	combined := strings.Join(parts, "|")
	if len(parts) == 0 {
		fallback = true
		combined = UnknownDevice
		if fm.nodeName != nil {
			if node, err := safeRead(fm.nodeName); err == nil && node != "" {
				combined = node
			}
		}
		fm.logger.Warn("No device signals available, using fallback fingerprint",
			slog.Bool("node_name", combined != UnknownDevice))
	}

	hash := sha256.Sum256([]byte(combined))
	fingerprint := hex.EncodeToString(hash[:])

	fm.logger.Info("Device fingerprint generated",
		slog.String("fingerprint_prefix", fingerprint[:16]),
		slog.Int("factors", len(parts)),
		slog.Bool("fallback", fallback),
		slog.Duration("generation_time", time.Since(start)))

	return &DeviceFingerprint{
		Fingerprint: fingerprint,
		Factors:     factors,
		Fallback:    fallback,
		GeneratedAt: time.Now(),
	}
}

// safeRead turns a panicking source into an error
func safeRead(read func() (string, error)) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fingerprint source panicked: %v", r)
		}
	}()
	return read()
}

// GetMACAddress retrieves the primary network interface MAC address
func GetMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	// First non-loopback, up interface with a real MAC
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return strings.ToUpper(mac), nil
		}
	}

	// Fallback: any interface with a MAC address
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return strings.ToUpper(mac), nil
		}
	}

	return "", fmt.Errorf("no valid MAC address found")
}

// GetHostname retrieves the machine hostname
func GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}

	return hostname, nil
}

// NodeName returns the raw host name, falling back to the kernel node name
// when the host name cannot be read.
func NodeName() (string, error) {
	return nodeNameFrom(os.Hostname, unameNodename)
}

func nodeNameFrom(hostname, uname func() (string, error)) (string, error) {
	if name, err := hostname(); err == nil && strings.TrimSpace(name) != "" {
		return name, nil
	}
	name, err := uname()
	if err != nil {
		return "", fmt.Errorf("node name unavailable: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("node name is empty")
	}
	return name, nil
}

// GetPlatform returns the OS and architecture descriptor. Kernel release
// strings are left out so routine OS updates keep the fingerprint stable.
func GetPlatform() (string, error) {
	return runtime.GOOS + "/" + runtime.GOARCH, nil
}

// GetDiskSerial retrieves a disk or installation serial (OS-specific)
func GetDiskSerial() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return commandSerial("wmic", "diskdrive", "get", "serialnumber")
	case "darwin":
		out, err := commandOutput("ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(out, "\n") {
			if strings.Contains(line, "IOPlatformSerialNumber") {
				if idx := strings.LastIndex(line, "="); idx >= 0 {
					return strings.Trim(strings.TrimSpace(line[idx+1:]), `"`), nil
				}
			}
		}
		return "", fmt.Errorf("platform serial not reported")
	default:
		for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if id := strings.TrimSpace(string(data)); id != "" {
				return id, nil
			}
		}
		return "", fmt.Errorf("machine id not found")
	}
}

// commandSerial returns the first value line after the header of a
// tabular command output.
func commandSerial(name string, args ...string) (string, error) {
	out, err := commandOutput(name, args...)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return "", fmt.Errorf("%s returned no serial", name)
	}
	return lines[1], nil
}

func commandOutput(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return string(out), nil
}

func maskFactor(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + strings.Repeat("*", len(v)-4)
}
