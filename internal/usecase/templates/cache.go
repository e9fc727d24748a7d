package templates

import (
	"math/rand"
	"sync/atomic"
)

// Cache хранит упорядоченный набор шаблонов комментариев. Содержимое
// заменяется только целиком, читатели всегда видят согласованный набор.
type Cache struct {
	items atomic.Pointer[[]string]
}

// NewCache создаёт пустой кэш.
func NewCache() *Cache {
	c := &Cache{}
	empty := []string{}
	c.items.Store(&empty)
	return c
}

// Replace целиком заменяет набор шаблонов.
func (c *Cache) Replace(items []string) {
	clone := make([]string, len(items))
	copy(clone, items)
	c.items.Store(&clone)
}

// Pick выбирает шаблон равновероятно; ok=false для пустого кэша.
func (c *Cache) Pick(rng *rand.Rand) (string, bool) {
	cur := *c.items.Load()
	if len(cur) == 0 {
		return "", false
	}
	return cur[rng.Intn(len(cur))], true
}

// Len возвращает количество шаблонов.
func (c *Cache) Len() int {
	return len(*c.items.Load())
}
