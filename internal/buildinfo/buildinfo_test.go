package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info()
	assert.Equal(t, "dev", info["version"])
	assert.Equal(t, runtime.Version(), info["goVersion"])
	assert.Contains(t, info, "commit")
	assert.Contains(t, info, "builtAt")
}
