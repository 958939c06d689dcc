package attach

import (
	"math/rand/v2"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
	"github.com/crystal-mush/xmlattach/pkg/timer"
)

// Env is what handlers get to act on the world with. A Registry owns one
// and hands the same pointer to every handler call.
type Env struct {
	World    *gamedb.World
	Timers   *timer.Scheduler
	Script   *script.Engine
	Registry *Registry

	// Rankings serves leader boards. It may be nil.
	Rankings Rankings

	// Rand returns a value in [0, n). Tests replace it for determinism.
	Rand func(n int) int
}

// Rankings renders the quest ranking. n <= 0 asks for the default board
// size.
type Rankings interface {
	TopLines(n int) []string
}

// Now returns the scheduler's clock.
func (env *Env) Now() time.Time {
	if env.Timers == nil {
		return time.Now()
	}
	return env.Timers.Now()
}

// Tell sends a message to e.
func (env *Env) Tell(e *gamedb.Entity, msg string) {
	if e == nil {
		return
	}
	if env.World != nil {
		env.World.Tell(e, msg)
		return
	}
	e.Messages = append(e.Messages, msg)
}

// Run executes an action list against target.
func (env *Env) Run(target *gamedb.Entity, actions string) script.Result {
	if actions == "" || env.Script == nil {
		return script.Result{}
	}
	return env.Script.RunActions(target, actions)
}

// Check evaluates a condition against target.
func (env *Env) Check(target *gamedb.Entity, cond string) bool {
	return script.EvaluateCondition(target, cond)
}

// Later runs fn on the next scheduler tick.
func (env *Env) Later(fn func()) *timer.Handle {
	return env.Timers.DelayCall(fn)
}

// Delete removes an entity, or schedules the removal when called from
// inside a handler.
func (env *Env) Delete(e *gamedb.Entity) {
	env.Registry.SafeDeleteEntity(e)
}

func (env *Env) random(n int) int {
	if n <= 0 {
		return 0
	}
	if env.Rand != nil {
		return env.Rand(n)
	}
	return rand.IntN(n)
}
