package cache

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkSetOverwrite(b *testing.B) {
	c := New[string, string](WithMemoryLimit[string, string](1, 0))
	val := "value"

	for i := 0; i < b.N; i++ {
		c.Set("key", &val, 1, 5*time.Second)
	}
}

func BenchmarkSetUniqueKeys(b *testing.B) {
	c := New[string, string](WithMemoryLimit[string, string](b.N+1, 0))
	val := "value"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set("key-"+strconv.Itoa(i), &val, 1, 5*time.Second)
	}
}

func BenchmarkGetHit(b *testing.B) {
	c := New[string, string](WithMemoryLimit[string, string](1, 0))
	val := "value"
	c.Set("key", &val, 1, time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}
