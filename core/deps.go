package core

import (
	"time"

	"pkt.systems/pslog"
)

// EngineDeps captures the collaborators of the engine.
type EngineDeps struct {
	Bridge    Bridge
	EventSink EventSink
	Logger    pslog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}
