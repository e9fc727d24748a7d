package cache

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/mdl/shill-utilities/internal/domain"
)

func TestMemoryOnce(t *testing.T) {
	c := NewMemory()
	calls := 0
	for i := 0; i < 3; i++ {
		if err := c.Once("k", time.Minute, func() error {
			calls++
			return nil
		}); err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("функция должна выполниться один раз, вызовов: %d", calls)
	}
}

func TestMemoryOnceReleasesOnError(t *testing.T) {
	c := NewMemory()
	boom := errors.New("не вышло")
	if err := c.Once("k", time.Minute, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("ошибка функции должна вернуться, получили %v", err)
	}

	calls := 0
	if err := c.Once("k", time.Minute, func() error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if calls != 1 {
		t.Fatal("после ошибки замок должен сниматься")
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	c := NewMemory()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	if err := c.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	got, err := c.Get("k")
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("ожидали v, получили %q, %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Get("k"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("истёкший ключ должен давать промах, получили %v", err)
	}
}

func TestMemoryGetMiss(t *testing.T) {
	c := NewMemory()
	if _, err := c.Get("нет"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("ожидали ErrCacheMiss, получили %v", err)
	}
}
