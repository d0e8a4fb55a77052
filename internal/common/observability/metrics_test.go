package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilObservability_IsSafe(t *testing.T) {
	var o *Observability
	assert.NotPanics(t, func() {
		o.RecordTick(context.Background(), "sweep", "ok")
		o.RecordTickDuration(context.Background(), "sweep", time.Second)
		o.Shutdown()
	})
}

func TestNew_RecordsTicks(t *testing.T) {
	o := New("compliance-engine-test")
	defer o.Shutdown()

	assert.NotNil(t, o.tickCounter)
	assert.NotPanics(t, func() {
		o.RecordTick(context.Background(), "drain", "ok")
		o.RecordTickDuration(context.Background(), "drain", 25*time.Millisecond)
	})
}
