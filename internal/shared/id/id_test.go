package id

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequestID_Format(t *testing.T) {
	rid := NewRequestID()
	assert.True(t, strings.HasPrefix(rid.String(), "req_"))
	// 26-char ULID after the prefix.
	assert.Len(t, rid.String(), len("req_")+26)
}

func TestNewConnID_Format(t *testing.T) {
	cid := NewConnID()
	assert.True(t, strings.HasPrefix(cid.String(), "conn_"))
}

func TestGenerator_ConcurrentUniqueness(t *testing.T) {
	const n = 500
	var mu sync.Mutex
	seen := make(map[RequestID]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rid := NewRequestID()
			mu.Lock()
			seen[rid] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}
