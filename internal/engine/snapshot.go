package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/SteffenPL/EHT-sub000/internal/geom"
	"github.com/SteffenPL/EHT-sub000/internal/model"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/rng"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// Snapshot flattens the state into per-cell rows. Rows reference neighbors by
// stable cell id, not array index, so persisted snapshots survive later
// divisions and removals.
func Snapshot(st *tissue.State, p *params.Params) []model.CellRow {
	rngState := ""
	if st.RNG != nil {
		rngState = strconv.FormatUint(st.RNG.State(), 16)
	}

	rows := make([]model.CellRow, 0, len(st.Cells))
	for i := range st.Cells {
		c := &st.Cells[i]
		ct := p.Type(c.Type)
		rows = append(rows, model.CellRow{
			CellID:          c.ID,
			Type:            ct.Name,
			TimeH:           st.T,
			PosX:            c.Pos.X,
			PosY:            c.Pos.Y,
			AX:              c.A.X,
			AY:              c.A.Y,
			BX:              c.B.X,
			BY:              c.B.Y,
			EtaA:            c.EtaA,
			EtaB:            c.EtaB,
			HasA:            c.HasA,
			HasB:            c.HasB,
			Phase:           c.Phase(st.T, ct).String(),
			BirthTime:       c.BirthTime,
			DivisionTime:    c.DivisionTime,
			RunningMode:     c.RunningMode,
			IsRunning:       c.IsRunning,
			HasINM:          c.HasINM,
			TimeA:           model.JSONFloat(c.TimeA),
			TimeB:           model.JSONFloat(c.TimeB),
			TimeS:           model.JSONFloat(c.TimeS),
			TimeP:           model.JSONFloat(c.TimeP),
			ApicalNeighbors: joinIDs(st, st.ApicalNeighbors(i)),
			BasalNeighbors:  joinIDs(st, st.BasalNeighbors(i)),
			Curvature1:      st.Geometry.Curvature1,
			Curvature2:      st.Geometry.Curvature2,
			RNGState:        rngState,
		})
	}
	return rows
}

// LoadSnapshot rebuilds a state from exported rows: ids are re-resolved to
// array indices, geometry is rehydrated from the stored curvatures, and the
// RNG cursor is restored. Two reconstructions are lossy: event-modified
// stiffness values are re-derived from the type table, the adhesion flags,
// and the event-time clock comparisons, and apical-link rest lengths are not
// persisted either, so each rebuilt link takes the current apical distance as
// its rest length.
func LoadSnapshot(rows []model.CellRow, p *params.Params) (*tissue.State, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("snapshot has no rows")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	st := &tissue.State{
		T: rows[0].TimeH,
		Geometry: geom.Curvatures{
			Curvature1: rows[0].Curvature1,
			Curvature2: rows[0].Curvature2,
		},
	}
	if p.General.Dt > 0 {
		st.StepCount = int(math.Round(st.T / p.General.Dt))
	}
	if cursor, err := strconv.ParseUint(rows[0].RNGState, 16, 64); err == nil {
		st.RNG = rng.Restore(cursor)
	} else {
		st.RNG = rng.New(0)
	}

	indexByID := make(map[int]int, len(rows))
	maxID := -1
	for i, row := range rows {
		if _, dup := indexByID[row.CellID]; dup {
			return nil, fmt.Errorf("duplicate cell id %d in snapshot", row.CellID)
		}
		indexByID[row.CellID] = i
		if row.CellID > maxID {
			maxID = row.CellID
		}

		typeIdx := p.TypeIndex(row.Type)
		ct := p.Type(typeIdx)
		c := tissue.Cell{
			ID:           row.CellID,
			Type:         typeIdx,
			Pos:          geom.Vec{X: row.PosX, Y: row.PosY},
			A:            geom.Vec{X: row.AX, Y: row.AY},
			B:            geom.Vec{X: row.BX, Y: row.BY},
			RSoft:        ct.RSoft,
			RHard:        ct.RHard,
			EtaA:         row.EtaA,
			EtaB:         row.EtaB,
			HasA:         row.HasA,
			HasB:         row.HasB,
			BirthTime:    row.BirthTime,
			DivisionTime: row.DivisionTime,
			IsRunning:    row.IsRunning,
			RunningMode:  row.RunningMode,
			HasINM:       row.HasINM,
			TimeA:        float64(row.TimeA),
			TimeB:        float64(row.TimeB),
			TimeS:        float64(row.TimeS),
			TimeP:        float64(row.TimeP),
		}
		c.StiffApical = ct.StiffnessNucleiApical
		if !c.HasA {
			c.StiffApical /= apicalStiffnessDrop
		}
		c.StiffBasal = ct.StiffnessNucleiBasal
		c.StiffStraight = ct.StiffnessStraightness
		if c.TimeS <= st.T {
			c.StiffStraight = relaxedStraightness
		}
		st.Cells = append(st.Cells, c)
	}
	st.NextID = maxID + 1

	for i, row := range rows {
		apical, err := parseIDs(row.ApicalNeighbors)
		if err != nil {
			return nil, fmt.Errorf("cell %d apical neighbors: %w", row.CellID, err)
		}
		for _, id := range apical {
			j, ok := indexByID[id]
			if !ok {
				return nil, fmt.Errorf("cell %d references unknown apical neighbor %d", row.CellID, id)
			}
			if i < j {
				st.Apical = append(st.Apical, tissue.ApicalLink{
					L: i, R: j, Rest: st.Cells[i].A.Dist(st.Cells[j].A),
				})
			}
		}
		basal, err := parseIDs(row.BasalNeighbors)
		if err != nil {
			return nil, fmt.Errorf("cell %d basal neighbors: %w", row.CellID, err)
		}
		for _, id := range basal {
			j, ok := indexByID[id]
			if !ok {
				return nil, fmt.Errorf("cell %d references unknown basal neighbor %d", row.CellID, id)
			}
			if i < j {
				st.Basal = append(st.Basal, tissue.BasalLink{L: i, R: j})
			}
		}
	}
	return st, nil
}

func joinIDs(st *tissue.State, indices []int) string {
	ids := make([]int, 0, len(indices))
	for _, idx := range indices {
		ids = append(ids, st.Cells[idx].ID)
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ";")
}

func parseIDs(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad neighbor id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
