package predict

import (
	"sync"
	"time"
)

// State is the typing activity state.
type State int

const (
	Idle State = iota
	Typing
)

func (s State) String() string {
	if s == Typing {
		return "typing"
	}
	return "idle"
}

// Activity tracks whether the user is typing. Any non-empty edit moves it
// to Typing; it returns to Idle once idleAfter passes without edits.
type Activity struct {
	mu        sync.Mutex
	idleAfter time.Duration
	lastEdit  time.Time
	typing    bool
}

// NewActivity creates an Activity in the Idle state.
func NewActivity(idleAfter time.Duration) *Activity {
	return &Activity{idleAfter: idleAfter}
}

// OnEdit records an edit inserting change at now.
func (a *Activity) OnEdit(change string, now time.Time) {
	if change == "" {
		return
	}
	a.mu.Lock()
	a.typing = true
	a.lastEdit = now
	a.mu.Unlock()
}

// State returns the state at now.
func (a *Activity) State(now time.Time) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.typing && now.Sub(a.lastEdit) >= a.idleAfter {
		a.typing = false
	}
	if a.typing {
		return Typing
	}
	return Idle
}

// Decorate predicts for live decorations. Nothing is predicted while the
// user is typing, to avoid flicker.
func (e *Engine) Decorate(req Request, activity *Activity, now time.Time) *Prediction {
	if activity.State(now) == Typing {
		return nil
	}
	return e.Predict(req)
}
