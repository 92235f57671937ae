package config

import "sort"

var Presets = map[string]*Base{
	"smoke": {
		Nx: 8, Ny: 8, Ni: 100,
		Ranks: 1, Nout: 10, Transport: "local", Out: "field.dat",
	},
	"small": {
		Nx: 50, Ny: 50, Ni: 5000,
		Ranks: 2, Nout: 500, Transport: "local", Out: "field.dat",
	},
	"medium": {
		Nx: 100, Ny: 200, Ni: 20000,
		Ranks: 4, Nout: 1000, Transport: "local", Out: "field.dat",
	},
	"large": {
		Nx: 250, Ny: 500, Ni: 100000,
		Ranks: 8, Nout: 5000, Transport: "local", Out: "field.dat",
	},
	"tall": {
		Nx: 50, Ny: 1000, Ni: 20000,
		Ranks: 4, Nout: 1000, Transport: "local", Out: "field.dat",
	},
}

// GetPreset returns a copy of the named preset, so callers can layer flag
// overrides on top without mutating the table.
func GetPreset(name string) *Base {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	b := *p
	return &b
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
