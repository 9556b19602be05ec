package scope

import (
	"testing"
)

type fakeFallback struct {
	describedGauges []Key
	registeredNames []string
	handle          GaugeHandle
}

func (f *fakeFallback) DescribeGauge(key Key, unit, description string) {
	f.describedGauges = append(f.describedGauges, key)
}
func (f *fakeFallback) RegisterGauge(key Key) GaugeHandle {
	f.registeredNames = append(f.registeredNames, key.Name)
	if f.handle != nil {
		return f.handle
	}
	return NoopHandle{}
}
func (f *fakeFallback) DescribeCounter(Key, string, string) {}
func (f *fakeFallback) RegisterCounter(key Key) GaugeHandle {
	f.registeredNames = append(f.registeredNames, key.Name)
	return NoopHandle{}
}
func (f *fakeFallback) DescribeHistogram(Key, string, string) {}
func (f *fakeFallback) RegisterHistogram(key Key) GaugeHandle {
	f.registeredNames = append(f.registeredNames, key.Name)
	return NoopHandle{}
}

func TestFacade_ScopedGauge_GoesToRegistry(t *testing.T) {
	reg := NewRegistry()
	fb := &fakeFallback{}
	f := NewFacade(reg, fb)

	h := f.RegisterGauge(Key{Name: "~cpu_temp", Labels: map[string]string{"unit": "c"}})
	h.Set(42.5)

	if len(fb.registeredNames) != 0 {
		t.Fatalf("expected scoped metric to never reach fallback, got %v", fb.registeredNames)
	}

	var found bool
	reg.IterLive(0, func(l Live) {
		if l.Name == "~cpu_temp" {
			found = true
			if l.Value != 42.5 {
				t.Fatalf("expected 42.5, got %v", l.Value)
			}
		}
	})
	if !found {
		t.Fatalf("expected ~cpu_temp in registry")
	}
}

func TestFacade_ForeignMetric_GoesToFallbackOnly(t *testing.T) {
	reg := NewRegistry()
	fb := &fakeFallback{}
	f := NewFacade(reg, fb)

	f.RegisterGauge(Key{Name: "foo"})

	if len(fb.registeredNames) != 1 || fb.registeredNames[0] != "foo" {
		t.Fatalf("expected foo forwarded to fallback, got %v", fb.registeredNames)
	}
	count := 0
	reg.IterLive(0, func(Live) { count++ })
	if count != 0 {
		t.Fatalf("expected foreign metric to never reach the scope registry")
	}
}

func TestFacade_ForeignMetric_NoFallback_DroppedSilently(t *testing.T) {
	reg := NewRegistry()
	f := NewFacade(reg, nil)

	h := f.RegisterGauge(Key{Name: "foo"})
	h.Set(1) // must not panic

	count := 0
	reg.IterLive(0, func(Live) { count++ })
	if count != 0 {
		t.Fatalf("expected no metrics registered")
	}
}

func TestFacade_Dispatch_NeitherLeaksIntoTheOther(t *testing.T) {
	reg := NewRegistry()
	fb := &fakeFallback{}
	f := NewFacade(reg, fb)

	f.RegisterGauge(Key{Name: "~s"}).Set(1)
	f.RegisterGauge(Key{Name: "foo"}).Set(2)

	scopedNames := map[string]bool{}
	reg.IterLive(0, func(l Live) { scopedNames[l.Name] = true })

	if !scopedNames["~s"] || scopedNames["foo"] {
		t.Fatalf("expected only ~s in scope registry, got %v", scopedNames)
	}
	if len(fb.registeredNames) != 1 || fb.registeredNames[0] != "foo" {
		t.Fatalf("expected only foo forwarded to fallback, got %v", fb.registeredNames)
	}
}

func TestFacade_ScopedNonGaugeKinds_AreNoop(t *testing.T) {
	reg := NewRegistry()
	f := NewFacade(reg, nil)

	h := f.RegisterCounter(Key{Name: "~requests"})
	h.Set(1) // must not panic, must not appear anywhere

	count := 0
	reg.IterLive(0, func(Live) { count++ })
	if count != 0 {
		t.Fatalf("expected scope to never register a counter kind, got %d entries", count)
	}
}

func TestFacade_DescribeGauge_InternsCellWithZeroValue(t *testing.T) {
	reg := NewRegistry()
	f := NewFacade(reg, nil)
	f.DescribeGauge(Key{Name: "~x"}, "C", "temperature")

	// Describe interns the same cell RegisterGauge would. No value has
	// ever been Set, so it is still "live" under the default forever-window
	// and has zero value.
	var value float64
	found := false
	reg.IterLive(0, func(l Live) {
		if l.Name == "~x" {
			found = true
			value = l.Value
		}
	})
	if !found || value != 0 {
		t.Fatalf("expected ~x present with zero value, got found=%v value=%v", found, value)
	}
}
