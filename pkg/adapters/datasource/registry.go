package datasource

import (
	"context"
	"fmt"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapter types.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// lookup returns the registration for a source type, if present.
func lookup(dsType string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dsType]
	return reg, ok
}

// IsRegistered checks whether an adapter type is available.
func IsRegistered(dsType string) bool {
	_, ok := lookup(dsType)
	return ok
}

// NewTester opens a standalone test connection for the given adapter type.
// Used for pre-save validation; the caller must Close the tester.
func NewTester(ctx context.Context, dsType string, config map[string]any) (ConnectionTester, error) {
	reg, ok := lookup(dsType)
	if !ok || reg.NewTester == nil {
		return nil, fmt.Errorf("unsupported datasource type %q", dsType)
	}
	return reg.NewTester(ctx, config)
}
