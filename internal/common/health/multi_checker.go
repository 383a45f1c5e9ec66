package health

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// MultiChecker is healthy only when every dependency registered with it is healthy.
type MultiChecker struct {
	mu       sync.RWMutex
	names    []string
	checkers map[string]Checker
}

func NewMultiChecker() *MultiChecker {
	return &MultiChecker{checkers: map[string]Checker{}}
}

// Add registers checker under name, replacing any checker previously registered with that name.
func (mc *MultiChecker) Add(name string, checker Checker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.checkers[name]; !ok {
		mc.names = append(mc.names, name)
	}
	mc.checkers[name] = checker
}

// Check runs every checker in registration order. Each failure is prefixed by the name of its dependency.
func (mc *MultiChecker) Check() error {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	var result *multierror.Error
	for _, name := range mc.names {
		if err := mc.checkers[name].Check(); err != nil {
			result = multierror.Append(result, errors.WithMessage(err, name))
		}
	}
	return result.ErrorOrNil()
}
