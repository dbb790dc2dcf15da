// Package stock holds the one piece of cross-entity business logic shared by
// the client and the reference server: grain operations move silo stock.
//
// An operation record carries "type" ("ingreso" for grain in, "egreso" for
// grain out), "silo_id" and "quantity". A silo record carries "current_stock".
package stock

import "math"

const (
	FieldType         = "type"
	FieldSiloID       = "silo_id"
	FieldQuantity     = "quantity"
	FieldCurrentStock = "current_stock"

	TypeIngreso = "ingreso"
	TypeEgreso  = "egreso"
)

// Delta returns the silo an operation affects and its signed effect on that
// silo's stock. ok is false when the operation does not move stock.
func Delta(op map[string]any) (siloID string, qty float64, ok bool) {
	if op == nil {
		return "", 0, false
	}
	siloID, _ = op[FieldSiloID].(string)
	if siloID == "" {
		return "", 0, false
	}
	q, isNum := number(op[FieldQuantity])
	if !isNum {
		return "", 0, false
	}
	switch op[FieldType] {
	case TypeIngreso:
		return siloID, q, true
	case TypeEgreso:
		return siloID, -q, true
	default:
		return "", 0, false
	}
}

// Change is a stock adjustment for one silo.
type Change struct {
	SiloID string
	Delta  float64
}

// Diff returns the adjustments needed when an operation goes from before to
// after. Either side may be nil (create, delete). Changes with a zero delta
// are omitted.
func Diff(before, after map[string]any) []Change {
	acc := make(map[string]float64, 2)
	order := make([]string, 0, 2)
	add := func(id string, d float64) {
		if _, seen := acc[id]; !seen {
			order = append(order, id)
		}
		acc[id] += d
	}
	if id, q, ok := Delta(before); ok {
		add(id, -q)
	}
	if id, q, ok := Delta(after); ok {
		add(id, q)
	}

	out := make([]Change, 0, len(order))
	for _, id := range order {
		if acc[id] != 0 {
			out = append(out, Change{SiloID: id, Delta: acc[id]})
		}
	}
	return out
}

// Apply returns a copy of silo with delta added to current_stock. A missing
// or non-numeric stock counts as zero.
func Apply(silo map[string]any, delta float64) map[string]any {
	out := make(map[string]any, len(silo)+1)
	for k, v := range silo {
		out[k] = v
	}
	cur, _ := number(silo[FieldCurrentStock])
	out[FieldCurrentStock] = round(cur + delta)
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// round trims float noise from repeated additions of decimal tonnages.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
