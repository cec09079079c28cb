package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hyperjump/embedapi/internal/models"
)

func key(s string) Key {
	return DeriveKey(s, models.BackendLocal)
}

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(n); err != ErrInvalidCapacity {
			t.Errorf("New(%d) error = %v, want ErrInvalidCapacity", n, err)
		}
	}
}

func TestCache_GetPut(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := c.Get(key("a")); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Put(key("a"), []float32{1, 2, 3})
	v, ok := c.Get(key("a"))
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Put(key("b"), []float32{4, 5})
	c.Put(key("c"), []float32{6}) // evicts a
	if _, ok := c.Get(key("a")); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get(key("b")); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get(key("c")); !ok {
		t.Error("expected c to be present")
	}
}

func TestCache_KeepsLastCapacityKeys(t *testing.T) {
	const capacity, n = 5, 12
	c, _ := New(capacity)
	for i := 1; i <= n; i++ {
		c.Put(key(fmt.Sprintf("k%d", i)), []float32{float32(i)})
		if c.Len() > capacity {
			t.Fatalf("after put %d: len %d exceeds capacity", i, c.Len())
		}
	}
	keys := c.Keys()
	if len(keys) != capacity {
		t.Fatalf("len = %d, want %d", len(keys), capacity)
	}
	for i, k := range keys {
		want := key(fmt.Sprintf("k%d", n-capacity+1+i))
		if k != want {
			t.Errorf("keys[%d] is not k%d", i, n-capacity+1+i)
		}
	}
	if _, ok := c.Get(key("k1")); ok {
		t.Error("k1 should have been evicted")
	}
	if got := c.Stats().Evictions; got != n-capacity {
		t.Errorf("evictions = %d, want %d", got, n-capacity)
	}
}

func TestCache_HitDoesNotRefreshOrder(t *testing.T) {
	c, _ := New(2)
	c.Put(key("a"), []float32{1})
	c.Put(key("b"), []float32{2})
	c.Get(key("a"))
	c.Put(key("c"), []float32{3})
	if _, ok := c.Get(key("a")); ok {
		t.Error("a was read but is still the oldest insertion and must be evicted")
	}
	if _, ok := c.Get(key("b")); !ok {
		t.Error("b should remain")
	}
}

func TestCache_OverwriteKeepsPosition(t *testing.T) {
	c, _ := New(2)
	c.Put(key("a"), []float32{1})
	c.Put(key("b"), []float32{2})
	c.Put(key("a"), []float32{10})
	if c.Len() != 2 {
		t.Fatalf("overwrite changed size to %d", c.Len())
	}
	if v, _ := c.Get(key("a")); v[0] != 10 {
		t.Errorf("overwrite value = %v", v)
	}
	c.Put(key("c"), []float32{3})
	if _, ok := c.Get(key("a")); ok {
		t.Error("overwritten a keeps its original position and must be evicted first")
	}
}

func TestCache_ValuesAreCopied(t *testing.T) {
	c, _ := New(1)
	in := []float32{1, 2}
	c.Put(key("a"), in)
	in[0] = 100
	out, _ := c.Get(key("a"))
	if out[0] != 1 {
		t.Errorf("stored vector changed through caller slice: %v", out)
	}
	out[1] = 200
	again, _ := c.Get(key("a"))
	if again[1] != 2 {
		t.Errorf("stored vector changed through returned slice: %v", again)
	}
}

func TestCache_Stats(t *testing.T) {
	c, _ := New(3)
	c.Put(key("a"), []float32{1})
	c.Get(key("a"))
	c.Get(key("a"))
	c.Get(key("missing"))
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Size != 1 || s.Capacity != 3 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCache_ConcurrentPutsRespectCapacity(t *testing.T) {
	const capacity = 50
	c, _ := New(capacity)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := key(fmt.Sprintf("w%d-%d", w, i))
				c.Put(k, []float32{float32(i)})
				c.Get(k)
			}
		}(w)
	}
	wg.Wait()
	if c.Len() != capacity {
		t.Errorf("len = %d, want %d", c.Len(), capacity)
	}
	if len(c.Keys()) != capacity {
		t.Errorf("order list length = %d, want %d", len(c.Keys()), capacity)
	}
}

func BenchmarkCache_PutGet(b *testing.B) {
	c, _ := New(1000)
	vec := make([]float32, 384)
	keys := make([]Key, 4096)
	for i := range keys {
		keys[i] = key(fmt.Sprintf("bench-%d", i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := keys[i%len(keys)]
		if _, ok := c.Get(k); !ok {
			c.Put(k, vec)
		}
	}
}
