package bridge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterDisabled(t *testing.T) {
	r := Router{Enabled: false, Percentage: 100}
	assert.False(t, r.UseRealtime("CA1234567890"))
}

func TestRouterZeroPercentage(t *testing.T) {
	r := Router{Enabled: true, Percentage: 0}
	assert.False(t, r.UseRealtime("CA1234567890"))
}

func TestRouterEmptyCallID(t *testing.T) {
	r := Router{Enabled: true, Percentage: 100}
	assert.False(t, r.UseRealtime(""))
}

func TestRouterFullRollout(t *testing.T) {
	r := Router{Enabled: true, Percentage: 100}
	for i := 0; i < 50; i++ {
		assert.True(t, r.UseRealtime(fmt.Sprintf("CA%08d", i)))
	}
}

func TestRouterDeterministic(t *testing.T) {
	r := Router{Enabled: true, Percentage: 50}
	callID := "CAdeadbeef00112233"
	first := r.UseRealtime(callID)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.UseRealtime(callID))
	}
}

func TestRouterMonotonicInPercentage(t *testing.T) {
	// A call admitted at a lower percentage stays admitted at every higher one.
	for i := 0; i < 200; i++ {
		callID := fmt.Sprintf("CA%016d", i)
		admitted := false
		for p := 1; p <= 100; p++ {
			r := Router{Enabled: true, Percentage: p}
			got := r.UseRealtime(callID)
			if admitted {
				assert.True(t, got, "call %s dropped out at percentage %d", callID, p)
			}
			if got {
				admitted = true
			}
		}
	}
}

func TestRouterDistribution(t *testing.T) {
	r := Router{Enabled: true, Percentage: 50}
	admitted := 0
	const n = 1000
	for i := 0; i < n; i++ {
		if r.UseRealtime(fmt.Sprintf("CA%032d", i)) {
			admitted++
		}
	}
	assert.Greater(t, admitted, 350, "rollout far below configured percentage")
	assert.Less(t, admitted, 650, "rollout far above configured percentage")
}
