package filter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Params is the parameter bag a filter is constructed from.
type Params map[string]float64

// Get returns the named parameter or def when it is absent.
func (p Params) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Constructor builds a filter from its parameters.
type Constructor func(p Params) (Filter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{
		"identity": func(Params) (Filter, error) { return Identity{}, nil },
		"brightness": func(p Params) (Filter, error) {
			return NewBrightnessFilter(int(p.Get("adjustment", 0))), nil
		},
		"contrast": func(p Params) (Filter, error) {
			return NewContrastFilter(p.Get("factor", 1)), nil
		},
		"grayscale": func(Params) (Filter, error) { return NewGrayscaleFilter(), nil },
		"temperature": func(p Params) (Filter, error) {
			return NewColorTemperatureFilter(int(p.Get("temperature", 0))), nil
		},
		"blur": func(p Params) (Filter, error) {
			return NewBlurFilter(int(p.Get("radius", 1))), nil
		},
		"sharpen": func(p Params) (Filter, error) {
			return NewSharpenFilter(p.Get("strength", 1)), nil
		},
	}
)

// Register adds or replaces a named filter constructor.
func Register(name string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = c
}

// New builds the filter registered under name.
func New(name string, p Params) (Filter, error) {
	registryMu.RLock()
	c, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return c(p)
}

// Names returns the registered filter names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
