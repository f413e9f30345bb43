package utp

import (
	"time"

	"github.com/lthibault/utpwerks/pkg/engine"
	"github.com/lthibault/utpwerks/pkg/engine/plain"
)

// TimeoutInterval is the cadence at which CheckTimeouts should run.
const TimeoutInterval = 100 * time.Millisecond

// DefaultEngine serves endpoints created without OptEngine.
var DefaultEngine engine.Engine = plain.New()

// CheckTimeouts drives DefaultEngine's timers.  Call it every
// TimeoutInterval, whether or not any descriptor is readable.  Endpoints
// created with OptEngine need their engine's CheckTimeouts called instead.
func CheckTimeouts() { DefaultEngine.CheckTimeouts() }
