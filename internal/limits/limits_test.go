package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsNegatives(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.NoError(t, Limits{}.Validate(), "zero means unlimited")
	assert.Error(t, Limits{MaxMemoryMB: -1}.Validate())
	assert.Error(t, Limits{MaxCPUPercent: -1}.Validate())
	assert.Error(t, Limits{MaxExecutionTime: -time.Second}.Validate())
	assert.Error(t, Limits{MaxFileHandles: -1}.Validate())
}

func TestResolverOverridesMergePerField(t *testing.T) {
	r := NewResolver(
		Limits{MaxMemoryMB: 1000, MaxCPUPercent: 50, MaxExecutionTime: time.Hour, MaxFileHandles: 100},
		map[string]Limits{"coder": {MaxMemoryMB: 4000}},
	)

	coder := r.For("coder")
	assert.Equal(t, 4000.0, coder.MaxMemoryMB)
	assert.Equal(t, 50.0, coder.MaxCPUPercent, "unset override fields fall through")

	other := r.For("tester")
	assert.Equal(t, 1000.0, other.MaxMemoryMB)
}

func TestNewResolverSubstitutesDefaults(t *testing.T) {
	r := NewResolver(Limits{}, nil)
	assert.Equal(t, Default(), r.For("anything"))
}
