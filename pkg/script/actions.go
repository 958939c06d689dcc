package script

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// ErrUnknownDirective is returned for an action name that is neither a
// registered directive nor a spawnable type.
var ErrUnknownDirective = errors.New("script: unknown directive")

// Directive runs one action segment. args holds the '/'-separated fields
// after the directive name.
type Directive func(target *gamedb.Entity, args []string) error

// Result summarizes one RunActions call.
type Result struct {
	Ran    int
	Failed int
	Errors []error
}

// Engine resolves and runs action lists.
type Engine struct {
	mu         sync.RWMutex
	world      *gamedb.World
	directives map[string]Directive
	deleter    func(*gamedb.Entity)
	failures   atomic.Uint64
	onFailure  func(segment string, err error)
}

// NewEngine returns an engine with the built-in directives: SET, MSG, SPAWN
// and DELETE.
func NewEngine(world *gamedb.World) *Engine {
	e := &Engine{world: world, directives: make(map[string]Directive)}
	e.Register("SET", e.doSet)
	e.Register("MSG", e.doMsg)
	e.Register("SPAWN", e.doSpawn)
	e.Register("DELETE", e.doDelete)
	return e
}

// Register adds or replaces a directive. Names are case-insensitive.
func (e *Engine) Register(name string, d Directive) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.directives[strings.ToUpper(name)] = d
}

// SetDeleter installs the function DELETE uses. It must defer the actual
// removal, since actions usually run inside the target's own handlers.
func (e *Engine) SetDeleter(fn func(*gamedb.Entity)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleter = fn
}

// OnFailure installs a hook called for every failed segment.
func (e *Engine) OnFailure(fn func(segment string, err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFailure = fn
}

// Failures returns the number of failed segments since the engine started.
func (e *Engine) Failures() uint64 { return e.failures.Load() }

// RunActions splits actions on ';' and runs each segment against target.
// A segment that fails or panics is logged and counted; the remaining
// segments still run.
func (e *Engine) RunActions(target *gamedb.Entity, actions string) Result {
	var res Result
	for _, seg := range strings.Split(actions, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if err := e.runSegment(target, seg); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			e.failures.Add(1)
			log.Printf("script: action %q: %v", seg, err)
			e.mu.RLock()
			hook := e.onFailure
			e.mu.RUnlock()
			if hook != nil {
				hook(seg, err)
			}
			continue
		}
		res.Ran++
	}
	return res
}

func (e *Engine) runSegment(target *gamedb.Entity, seg string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script: panic: %v", r)
		}
	}()
	fields := strings.Split(seg, "/")
	name := strings.TrimSpace(fields[0])
	args := fields[1:]

	e.mu.RLock()
	d, ok := e.directives[strings.ToUpper(name)]
	e.mu.RUnlock()
	if ok {
		return d(target, args)
	}
	if e.world != nil && e.world.HasType(name) {
		return e.spawn(target, name, args)
	}
	return fmt.Errorf("%w %q", ErrUnknownDirective, name)
}

func (e *Engine) doSet(target *gamedb.Entity, args []string) error {
	if target == nil {
		return ErrNoTarget
	}
	return ApplyProperties(target, strings.Join(args, "/"))
}

func (e *Engine) doMsg(target *gamedb.Entity, args []string) error {
	if target == nil {
		return ErrNoTarget
	}
	text := strings.Join(args, "/")
	if e.world != nil {
		e.world.Tell(target, text)
	} else {
		target.Messages = append(target.Messages, text)
	}
	return nil
}

func (e *Engine) doSpawn(target *gamedb.Entity, args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("script: SPAWN needs a type name")
	}
	return e.spawn(target, strings.TrimSpace(args[0]), args[1:])
}

func (e *Engine) doDelete(target *gamedb.Entity, _ []string) error {
	if target == nil {
		return ErrNoTarget
	}
	e.mu.RLock()
	del := e.deleter
	e.mu.RUnlock()
	if del == nil {
		return fmt.Errorf("script: DELETE unavailable")
	}
	del(target)
	return nil
}

// spawn creates typeName next to target and applies any trailing
// property/value pairs to the new entity.
func (e *Engine) spawn(target *gamedb.Entity, typeName string, props []string) error {
	if e.world == nil {
		return fmt.Errorf("script: no world to spawn %q into", typeName)
	}
	var at gamedb.Point3D
	var mapName string
	if target != nil {
		at, mapName = e.world.WorldLocation(target)
	}
	spawned, err := e.world.Spawn(typeName, at, mapName)
	if err != nil {
		return err
	}
	if len(props) > 0 {
		if err := ApplyProperties(spawned, strings.Join(props, "/")); err != nil {
			return fmt.Errorf("script: spawned %s: %w", spawned.Serial, err)
		}
	}
	return nil
}
