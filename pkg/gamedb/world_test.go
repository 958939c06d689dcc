package gamedb

import (
	"errors"
	"testing"
	"time"
)

func TestWorldAddAssignsSerials(t *testing.T) {
	w := NewWorld()
	a := NewEntity(KindItem, "a")
	b := NewEntity(KindMobile, "b")
	w.Add(a)
	w.Add(b)
	if a.Serial != 1 || b.Serial != 2 {
		t.Fatalf("serials = %d, %d; want 1, 2", a.Serial, b.Serial)
	}

	loaded := NewEntity(KindItem, "loaded")
	loaded.Serial = 40
	w.Add(loaded)
	if w.NextSerial() != 41 {
		t.Errorf("NextSerial = %d, want 41", w.NextSerial())
	}
	w.SetNextSerial(10)
	if w.NextSerial() != 41 {
		t.Errorf("SetNextSerial moved allocator backwards to %d", w.NextSerial())
	}
}

func TestWorldDeleteRemovesContents(t *testing.T) {
	w := NewWorld()
	pack := NewEntity(KindItem, "pack")
	w.Add(pack)
	gem := NewEntity(KindItem, "gem")
	gem.Parent = pack.Serial
	w.Add(gem)

	w.Delete(pack)
	if !pack.Deleted || !gem.Deleted {
		t.Fatalf("pack deleted=%v gem deleted=%v", pack.Deleted, gem.Deleted)
	}
	if _, ok := w.Lookup(gem.Serial); ok {
		t.Error("gem still resolvable after container delete")
	}
	if w.Len() != 0 {
		t.Errorf("Len = %d, want 0", w.Len())
	}
}

func TestWorldSpawn(t *testing.T) {
	w := NewWorld()
	w.Define("wolf", Template{Kind: KindMobile, Name: "a grey wolf", Hits: 30})

	e, err := w.Spawn("Wolf", Point3D{1, 2, 0}, "Felucca")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if e.Name != "a grey wolf" || e.Hits != 30 || e.Kind != KindMobile {
		t.Errorf("spawned %+v", e)
	}
	if len(w.ByType("wolf")) != 1 {
		t.Error("ByType did not find spawned wolf")
	}

	_, err = w.Spawn("dragon", Point3D{}, "")
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Spawn unknown: err = %v, want ErrUnknownType", err)
	}
}

func TestWorldRangeUsesRootParent(t *testing.T) {
	w := NewWorld()
	player := NewEntity(KindMobile, "player")
	player.Location = Point3D{10, 10, 0}
	player.Map = "Felucca"
	w.Add(player)

	bag := NewEntity(KindItem, "bag")
	bag.Parent = player.Serial
	w.Add(bag)

	lever := NewEntity(KindItem, "lever")
	lever.Location = Point3D{12, 9, 0}
	lever.Map = "Felucca"
	w.Add(lever)

	if !w.InRange(bag, lever, 2) {
		t.Error("bag carried by player should be within 2 of lever")
	}
	if w.InRange(bag, lever, 1) {
		t.Error("bag should not be within 1 of lever")
	}
	lever.Map = "Trammel"
	if w.InRange(player, lever, 20) {
		t.Error("different maps should never be in range")
	}
	if w.InRange(player, player, -1) {
		t.Error("negative range should never match")
	}
}

func TestWorldTellNotifiesListeners(t *testing.T) {
	w := NewWorld()
	e := NewEntity(KindMobile, "m")
	w.Add(e)

	var got []string
	w.OnTell(func(to *Entity, msg string) { got = append(got, to.Name+":"+msg) })
	w.Tellf(e, "hello %d", 3)
	if e.LastMessage() != "hello 3" {
		t.Errorf("LastMessage = %q", e.LastMessage())
	}
	if len(got) != 1 || got[0] != "m:hello 3" {
		t.Errorf("listener got %v", got)
	}
}

func TestSkillValueMods(t *testing.T) {
	now := time.Unix(1000, 0)
	e := NewEntity(KindMobile, "m")
	e.Skills["Magery"] = 50
	e.AddSkillMod(SkillMod{Skill: "Magery", Value: 10, Expires: now.Add(time.Minute), Item: Nothing})
	e.AddSkillMod(SkillMod{Skill: "Magery", Value: 5, Item: 7})

	if v := e.SkillValue("Magery", now, func(DBRef) bool { return true }); v != 65 {
		t.Errorf("SkillValue = %v, want 65", v)
	}
	if v := e.SkillValue("Magery", now, func(DBRef) bool { return false }); v != 60 {
		t.Errorf("SkillValue unequipped = %v, want 60", v)
	}
	later := now.Add(2 * time.Minute)
	if n := e.PruneSkillMods(later); n != 1 {
		t.Errorf("PruneSkillMods dropped %d, want 1", n)
	}
	if v := e.SkillValue("Magery", later, nil); v != 50 {
		t.Errorf("SkillValue after prune = %v, want 50", v)
	}
}
