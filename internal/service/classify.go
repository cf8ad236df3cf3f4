package service

import (
	"sort"

	"house_screens/internal/models"
)

// hasActiveScreen reports whether any environment of h holds a working screen.
func hasActiveScreen(h models.House) bool {
	for _, e := range h.Environments {
		if environmentHasActive(e) {
			return true
		}
	}
	return false
}

func environmentHasActive(e models.Environment) bool {
	for _, s := range e.Screens {
		if s.IsActive() {
			return true
		}
	}
	return false
}

// masterEnvironment returns the first loopback-bound environment of h.
func masterEnvironment(h models.House) (models.Environment, bool) {
	for _, e := range h.Environments {
		if e.IsMaster() {
			return e, true
		}
	}
	return models.Environment{}, false
}

// primaryEnvironment is the master environment or, absent one, the first.
func primaryEnvironment(h models.House) (models.Environment, bool) {
	if m, ok := masterEnvironment(h); ok {
		return m, true
	}
	if len(h.Environments) == 0 {
		return models.Environment{}, false
	}
	return h.Environments[0], true
}

// isEssential: the sole environment of the house, or its master.
func isEssential(h models.House, e models.Environment) bool {
	if len(h.Environments) == 1 && h.Environments[0].ID == e.ID {
		return true
	}
	m, ok := masterEnvironment(h)
	return ok && m.ID == e.ID
}

// essentialHasActive reports whether an essential environment already holds
// a working screen.
func essentialHasActive(h models.House) bool {
	for _, e := range h.Environments {
		if isEssential(h, e) && environmentHasActive(e) {
			return true
		}
	}
	return false
}

// faultyPlayerEnvironments lists environments carrying the reserved player
// name that hold at least one faulty screen.
func faultyPlayerEnvironments(h models.House, playerName string) []models.Environment {
	var out []models.Environment
	for _, e := range h.Environments {
		if e.Name != playerName {
			continue
		}
		if _, ok := firstFaultyScreen(e); ok {
			out = append(out, e)
		}
	}
	return out
}

func partitionEssential(h models.House, envs []models.Environment) (essential, other []models.Environment) {
	for _, e := range envs {
		if isEssential(h, e) {
			essential = append(essential, e)
		} else {
			other = append(other, e)
		}
	}
	return essential, other
}

// firstFaultyScreen returns the faulty screen with the lowest seq.
func firstFaultyScreen(e models.Environment) (models.Screen, bool) {
	screens := bySeq(e.Screens)
	for _, s := range screens {
		if s.IsFaulty() {
			return s, true
		}
	}
	return models.Screen{}, false
}

// pickScreen chooses the screen to activate: the lowest-seq enabled one,
// else the lowest-seq one.
func pickScreen(e models.Environment) (models.Screen, bool) {
	screens := bySeq(e.Screens)
	if len(screens) == 0 {
		return models.Screen{}, false
	}
	for _, s := range screens {
		if s.Enabled {
			return s, true
		}
	}
	return screens[0], true
}

func bySeq(in []models.Screen) []models.Screen {
	out := append([]models.Screen(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
