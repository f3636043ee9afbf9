// Package java detects installed Java runtimes and keeps the preset
// registry servers reference by name.
package java

import (
	"context"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/pkg/types"
)

// Registry holds detected and user-registered presets keyed by name.
type Registry struct {
	log zerolog.Logger

	mu      sync.RWMutex
	presets map[string]*types.JavaPreset

	// detect is swapped out in tests.
	detect func(ctx context.Context, executable string) (*types.JavaInfo, error)
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		log:     logging.WithComponent("java"),
		presets: map[string]*types.JavaPreset{},
		detect:  Detect,
	}
}

// Load registers configured presets and scans the configured paths for
// runtimes. Detection failures demote a preset to unprobed rather than
// dropping it.
func (r *Registry) Load(ctx context.Context, cfg types.JavaConfig) {
	for _, p := range cfg.Presets {
		if err := r.Register(ctx, p.Name, p.Executable); err != nil {
			r.log.Warn().Str("preset", p.Name).Str("executable", p.Executable).Err(err).Msg("java preset probe failed")
			r.mu.Lock()
			r.presets[p.Name] = &types.JavaPreset{Name: p.Name, Executable: p.Executable, Registered: true}
			r.mu.Unlock()
		}
	}
	for _, dir := range cfg.ScanPaths {
		r.scanDir(ctx, dir)
	}
	if _, err := exec.LookPath("java"); err == nil {
		r.autoRegister(ctx, "default", "java")
	}
}

// Register probes the executable and stores it as a user preset.
func (r *Registry) Register(ctx context.Context, name, executable string) error {
	info, err := r.detect(ctx, executable)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.presets[name] = &types.JavaPreset{Name: name, Executable: executable, Info: info, Registered: true}
	r.mu.Unlock()
	return nil
}

// Remove drops a preset by name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.presets[name]; !ok {
		return errs.ErrUnknownJava.WithDetail("%s", name)
	}
	delete(r.presets, name)
	return nil
}

// Preset resolves one preset by name.
func (r *Registry) Preset(name string) (types.JavaPreset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[name]
	if !ok {
		return types.JavaPreset{}, errs.ErrUnknownJava.WithDetail("%s", name)
	}
	return *p, nil
}

// Executable resolves a preset name to its binary path.
func (r *Registry) Executable(name string) (string, error) {
	p, err := r.Preset(name)
	if err != nil {
		return "", err
	}
	return p.Executable, nil
}

// Presets lists every preset, sorted by name.
func (r *Registry) Presets() []types.JavaPreset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.JavaPreset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Rate ranks every probed preset against a required major version.
func (r *Registry) Rate(required int) map[string]types.JavaSuitability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string]types.JavaSuitability{}
	for name, p := range r.presets {
		if p.Info == nil {
			continue
		}
		out[name] = types.RateJava(p.Info.MajorVersion, required)
	}
	return out
}

func (r *Registry) scanDir(ctx context.Context, dir string) {
	homes, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return
	}
	for _, home := range homes {
		exe := filepath.Join(home, "bin", "java")
		r.autoRegister(ctx, filepath.Base(home), exe)
	}
}

func (r *Registry) autoRegister(ctx context.Context, name, executable string) {
	info, err := r.detect(ctx, executable)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.presets[name]; exists {
		return
	}
	r.presets[name] = &types.JavaPreset{Name: name, Executable: executable, Info: info}
}

// Detect runs `java -XshowSettings:properties -version` and parses the
// property dump it prints to stderr.
func Detect(ctx context.Context, executable string) (*types.JavaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, executable, "-XshowSettings:properties", "-version")
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errs.ErrUnknownJava.WithDetail("probe %s: %v", executable, err)
	}
	info := parseProperties(stderr.String())
	if info.MajorVersion == 0 {
		return nil, errs.ErrUnknownJava.WithDetail("probe %s: no version in output", executable)
	}
	return info, nil
}

func parseProperties(out string) *types.JavaInfo {
	props := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	info := &types.JavaInfo{
		JavaHome:             props["java.home"],
		ClassVersion:         props["java.class.version"],
		RuntimeVersion:       props["java.runtime.version"],
		SpecificationVersion: props["java.specification.version"],
		Vendor:               props["java.vendor"],
		VendorVersion:        props["java.vendor.version"],
	}
	if v := props["java.specification.version"]; v != "" {
		info.MajorVersion = MajorVersion(v)
	}
	if info.MajorVersion == 0 {
		info.MajorVersion = MajorVersion(props["java.version"])
	}
	return info
}

// MajorVersion extracts the Java major version from a version string:
// "1.8.0_392" is 8, "17.0.9" is 17, "22" is 22.
func MajorVersion(version string) int {
	version = strings.TrimSpace(version)
	if version == "" {
		return 0
	}
	parts := strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return 0
	}
	first, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	if first == 1 && len(parts) > 1 {
		second, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0
		}
		return second
	}
	return first
}
