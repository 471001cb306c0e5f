package counter

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoCounters is returned when counter-argument resolution produces an
// empty set. It fires before any hardware is touched.
var ErrNoCounters = errors.New("no counters for scan")

// Provider yields a set of counters for a scan. Measurement groups and
// counter-group namespaces supplied by external collaborators satisfy it.
type Provider interface {
	ScanCounters() []*Counter
}

// Resolve flattens heterogeneous counter arguments (raw counters,
// controllers, providers) into a single set, deduplicated by fullname and
// sorted by it. Calc-counter inputs are pulled in transitively so that
// every dependency is part of the set.
func Resolve(args ...any) ([]*Counter, error) {
	var flat []*Counter
	for _, arg := range args {
		switch v := arg.(type) {
		case *Counter:
			flat = append(flat, v)
		case Controller:
			flat = append(flat, v.Counters()...)
		case Provider:
			flat = append(flat, v.ScanCounters()...)
		case []*Counter:
			flat = append(flat, v...)
		default:
			return nil, fmt.Errorf("cannot resolve counter argument of type %T", arg)
		}
	}

	byFullName := make(map[string]*Counter)
	var add func(cnt *Counter)
	add = func(cnt *Counter) {
		if _, seen := byFullName[cnt.FullName]; seen {
			return
		}
		byFullName[cnt.FullName] = cnt
		if calc, ok := cnt.Controller.(CalcController); ok {
			for _, input := range calc.Inputs() {
				add(input)
			}
		}
	}
	for _, cnt := range flat {
		add(cnt)
	}

	if len(byFullName) == 0 {
		return nil, ErrNoCounters
	}

	names := make([]string, 0, len(byFullName))
	for name := range byFullName {
		names = append(names, name)
	}
	sort.Strings(names)

	counters := make([]*Counter, 0, len(names))
	for _, name := range names {
		counters = append(counters, byFullName[name])
	}
	return counters, nil
}
