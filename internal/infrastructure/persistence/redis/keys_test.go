package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "qemb:abc", BuildKey("", "qemb", "abc"))
	assert.Equal(t, "cinemind:qemb:abc", BuildKey("cinemind", "qemb", "abc"))
	assert.Equal(t, "cinemind:qemb:abc", BuildKey("cinemind:", "qemb", "abc"))
}

func TestWindowKey(t *testing.T) {
	base := time.UnixMilli(120_000)
	assert.Equal(t, "ratelimit:1.2.3.4:2", WindowKey("1.2.3.4", base, time.Minute))
	assert.Equal(t, WindowKey("k", base, time.Minute), WindowKey("k", base.Add(59*time.Second), time.Minute))
	assert.NotEqual(t, WindowKey("k", base, time.Minute), WindowKey("k", base.Add(time.Minute), time.Minute))
	assert.Equal(t, "ratelimit:k:2", WindowKey("k", base, 0))
}
