package door

import (
	"fmt"
	"testing"
)

func BenchmarkCache_Merge(b *testing.B) {
	c := NewCache()
	devices := make([]Device, 20)
	for i := range devices {
		devices[i] = garageDoor(fmt.Sprintf("G%02d", i), StateClosed)
	}

	b.ResetTimer()
	for i := 0; b.Loop(); i++ {
		c.Merge(devices[i%len(devices)])
	}
}

func BenchmarkCache_All(b *testing.B) {
	c := NewCache()
	for i := range 20 {
		c.Merge(garageDoor(fmt.Sprintf("G%02d", i), StateClosed))
	}

	for b.Loop() {
		for range c.All(FilterGarageDoors) {
		}
	}
}
