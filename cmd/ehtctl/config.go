package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/SteffenPL/EHT-sub000/internal/model"
	"github.com/SteffenPL/EHT-sub000/internal/params"
)

// loadParams reads a parameter file, or returns the defaults when no path is
// given.
func loadParams(path string) (params.Params, error) {
	if path == "" {
		return params.Default(), nil
	}
	return params.Load(path)
}

// overrideFlag collects repeated -override flags of the form
// "general.aspect_ratio=0,1,2" into an override map.
type overrideFlag struct {
	values map[string][]float64
}

func (f *overrideFlag) String() string {
	if len(f.values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f.values))
	for key := range f.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		nums := make([]string, len(f.values[key]))
		for i, v := range f.values[key] {
			nums[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		parts = append(parts, key+"="+strings.Join(nums, ","))
	}
	return strings.Join(parts, " ")
}

func (f *overrideFlag) Set(arg string) error {
	key, list, ok := strings.Cut(arg, "=")
	if !ok || key == "" {
		return fmt.Errorf("override %q: want key=v1,v2,...", arg)
	}
	if f.values == nil {
		f.values = make(map[string][]float64)
	}
	if _, exists := f.values[key]; exists {
		return fmt.Errorf("override %q given twice", key)
	}
	var values []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return fmt.Errorf("override %q: %w", arg, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return fmt.Errorf("override %q has no values", arg)
	}
	f.values[key] = values
	return nil
}

// seedsFlag parses a comma-separated seed list.
type seedsFlag struct {
	values []int64
}

func (f *seedsFlag) String() string {
	parts := make([]string, len(f.values))
	for i, seed := range f.values {
		parts[i] = strconv.FormatInt(seed, 10)
	}
	return strings.Join(parts, ",")
}

func (f *seedsFlag) Set(arg string) error {
	f.values = f.values[:0]
	for _, field := range strings.Split(arg, ",") {
		seed, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return fmt.Errorf("seeds %q: %w", arg, err)
		}
		f.values = append(f.values, seed)
	}
	return nil
}

func sortedKeys(values map[string]model.JSONFloat) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
