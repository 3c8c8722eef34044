// Package export implements the Core -> Exporter data layout boundary
// (spec.md §6.5): given a named signal set and their buffers, it lays out
// an index-lockstep matrix ready for a CSV or NumPy writer. The writers
// themselves are out of scope.
package export

import "ocdscope/internal/buffer"

// SignalConfig names one signal for export.
type SignalConfig struct {
	ID   buffer.SignalID
	Name string
}

// BuildRows iterates every buffer named in cfgs in index lockstep for
// n = min(len(buffer)) rows, returning the header names (in cfgs order)
// and an n x len(cfgs) matrix of Y values.
//
// This aligns signals by sample index, not by timestamp: a caveat from
// spec.md §6.5 that callers exporting multi-signal data must be aware of,
// since independently-clocked signals won't generally share timestamps.
func BuildRows(cfgs []SignalConfig, buffers map[buffer.SignalID]*buffer.Buffer) (names []string, rows [][]float64) {
	if len(cfgs) == 0 {
		return nil, nil
	}

	names = make([]string, len(cfgs))
	columns := make([][]buffer.Point, len(cfgs))
	n := -1
	for i, cfg := range cfgs {
		names[i] = cfg.Name
		buf := buffers[cfg.ID]
		var pts []buffer.Point
		if buf != nil {
			pts = buf.Samples()
		}
		columns[i] = pts
		if n < 0 || len(pts) < n {
			n = len(pts)
		}
	}
	if n <= 0 {
		return names, nil
	}

	rows = make([][]float64, n)
	for r := 0; r < n; r++ {
		row := make([]float64, len(cfgs))
		for c, pts := range columns {
			row[c] = pts[r].Y
		}
		rows[r] = row
	}
	return names, rows
}
