package registry

import (
	"bufio"
	"fmt"
	"io/fs"
	"strings"
)

// ProviderIdentity names a plugin.
type ProviderIdentity struct {
	ID      string
	Version string
}

// Dependency is a version-requirement pin on another plugin.
type Dependency struct {
	PluginID          string
	VersionConstraint string
}

// PluginProvider is the service-provider contract plugin authors implement.
// Go has no JVM-style classpath scanning, so discovery is adapted to the
// idiom database/sql uses for drivers: a provider registers a factory under
// a string key discovered from a manifest file, rather than reflection over
// a classpath.
type PluginProvider interface {
	Identity() ProviderIdentity
	Handles() []Handle
	NewExecutor(h Handle) (NodeExecutor, error)
	Dependencies() []Dependency
}

// ProviderFactory constructs a PluginProvider named in a manifest file.
type ProviderFactory func() (PluginProvider, error)

// pluginFactories is the process-scoped registry of known provider
// factories. Plugin packages call RegisterFactory from an init() function,
// mirroring database/sql.Register.
var pluginFactories = map[string]ProviderFactory{}

// RegisterFactory makes a PluginProvider factory available to
// DiscoverProviders under name. Intended to be called from a plugin
// package's init().
func RegisterFactory(name string, factory ProviderFactory) {
	pluginFactories[name] = factory
}

// ParseManifest reads a META-INF/services/PluginProvider-style manifest:
// one fully-qualified provider name per line, blank lines and lines
// starting with '#' ignored.
func ParseManifest(f fs.File) ([]string, error) {
	defer f.Close()
	var   names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read plugin manifest: %w", err)
	}
	return names, nil
}

// DiscoverProviders resolves manifest-listed provider names against the
// process-scoped factory registry and constructs each PluginProvider.
func DiscoverProviders(names []string) ([]PluginProvider, error) {
	out := make([]PluginProvider, 0, len(names))
	for _, name := range names {
		factory, ok := pluginFactories[name]
		if !ok {
			return nil, fmt.Errorf("no registered plugin factory for %q", name)
		}
		p, err := factory()
		if err != nil {
			return nil, fmt.Errorf("construct plugin %q: %w", name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
