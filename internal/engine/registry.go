package engine

import (
	"github.com/SteffenPL/EHT-sub000/internal/model"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// Model bundles the operations a simulation model exposes to the lab: build
// an initial state, advance it, and serialize it. Models share the tissue
// state representation so storage and reporting stay model-agnostic.
type Model struct {
	Name        string
	Description string

	Init     func(p *params.Params, seed int64) (*tissue.State, error)
	Step     func(st *tissue.State, dt float64, p *params.Params) error
	Snapshot func(st *tissue.State, p *params.Params) []model.CellRow
	Load     func(rows []model.CellRow, p *params.Params) (*tissue.State, error)
	Stats    func(st *tissue.State, p *params.Params) model.MetricsPoint
}

// Models returns the registry of available models. Construction is explicit;
// callers pick by name and get an error path for unknown names at their level.
func Models() map[string]Model {
	return map[string]Model{
		"eht": {
			Name:        "eht",
			Description: "epithelial tissue with EHT/EMT events on a curved basal membrane",
			Init:        Init,
			Step:        Step,
			Snapshot:    Snapshot,
			Load:        LoadSnapshot,
			Stats:       ComputeStats,
		},
		"toy": {
			Name:        "toy",
			Description: "diffusive walk of passive cells along the basal curve",
			Init:        ToyInit,
			Step:        ToyStep,
			Snapshot:    Snapshot,
			Load:        LoadSnapshot,
			Stats:       ComputeStats,
		},
	}
}
