package keymu

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameKeySerializes(t *testing.T) {
	m := New[string]()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do("guild", func() error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.False(t, m.Held("guild"))
}

func TestDifferentKeysIndependent(t *testing.T) {
	m := New[int]()
	a := m.Lock(1)
	assert.True(t, m.Held(1))

	done := make(chan struct{})
	go func() {
		b := m.Lock(2)
		b.Unlock()
		close(done)
	}()
	<-done

	a.Unlock()
	assert.False(t, m.Held(1))
}
