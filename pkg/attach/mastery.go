package attach

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// EnemyMastery adds a chance of extra damage against one creature type.
type EnemyMastery struct {
	Base
	PercentIncrease int
	Chance          int
	Enemy           string
}

// NewEnemyMastery returns a mastery of +50% damage on 20% of hits.
func NewEnemyMastery(enemy string) *EnemyMastery {
	return &EnemyMastery{PercentIncrease: 50, Chance: 20, Enemy: enemy}
}

var enemyMasterySchema = codec.NewSchema("EnemyMastery", codec.Fallthrough,
	codec.Group[EnemyMastery]{
		Since: 0,
		Write: func(w codec.Writer, a *EnemyMastery) {
			w.WriteInt(a.PercentIncrease)
			w.WriteInt(a.Chance)
			w.WriteString(a.Enemy)
		},
		Read: func(d *codec.Decoder, a *EnemyMastery) {
			a.PercentIncrease = d.ReadInt()
			a.Chance = d.ReadInt()
			a.Enemy = d.ReadString()
		},
	},
)

func (a *EnemyMastery) RecordType() string { return "EnemyMastery" }
func (a *EnemyMastery) EncodeRecord(w codec.Writer) error {
	return WriteRecord(w, &a.Base, enemyMasterySchema, a)
}
func (a *EnemyMastery) DecodeRecord(d *codec.Decoder) error {
	return ReadRecord(d, &a.Base, enemyMasterySchema, a)
}
func (a *EnemyMastery) Capabilities() Capability {
	return HandlesAttach | HandlesDelete | HandlesWeaponHit | HandlesIdentify
}

func (a *EnemyMastery) OnAttach(env *Env) {
	if on := a.AttachedTo(); on.IsMobile() {
		env.Tell(on, fmt.Sprintf("You gain the power of Enemy Mastery over %s", a.Enemy))
	}
}

func (a *EnemyMastery) OnDelete(env *Env) {
	if on := a.AttachedTo(); on.IsMobile() && !on.IsDeleted() {
		env.Tell(on, fmt.Sprintf("Your power of Enemy Mastery over %s fades..", a.Enemy))
	}
}

// OnWeaponHit returns the bonus damage for a hit on a matching defender.
// The caller applies it.
func (a *EnemyMastery) OnWeaponHit(env *Env, ev HitEvent) int {
	if a.Chance <= 0 || env.random(100) > a.Chance {
		return 0
	}
	if ev.Attacker == nil || ev.Defender == nil || a.Enemy == "" {
		return 0
	}
	if !strings.EqualFold(ev.Defender.TypeName, a.Enemy) {
		return 0
	}
	return ev.Damage * a.PercentIncrease / 100
}

func (a *EnemyMastery) OnIdentify(env *Env, from *gamedb.Entity) string {
	if a.Expiration > 0 {
		return fmt.Sprintf("Enemy Mastery : +%d%% damage vs %s, %d%%, hitchance %s", a.PercentIncrease, a.Enemy, a.Chance, a.expiresIn())
	}
	return fmt.Sprintf("Enemy Mastery : +%d%% damage vs %s, %d%% hitchance", a.PercentIncrease, a.Enemy, a.Chance)
}
