package expressions

import "github.com/rendis/worldscript/pkg/schema"

// noneLabel stands in for absent names, matching the template resolver.
const noneLabel = "None"

// Bindings flattens an execution context into the variables expressions
// see: actor, role, item and input. Absent parts are present with zero
// values so expressions never fail on a missing key.
func Bindings(ec *schema.ExecutionContext) map[string]any {
	if ec == nil {
		ec = &schema.ExecutionContext{}
	}
	return map[string]any{
		"actor": actorVars(ec.Actor),
		"role":  roleVars(ec.Role),
		"item":  itemVars(ec.Item),
		"input": ec.Input,
	}
}

func actorVars(a *schema.ActorRef) map[string]any {
	if a == nil {
		a = &schema.ActorRef{Name: noneLabel, Mate: noneLabel}
	}
	return map[string]any{
		"present":    a.ID != 0,
		"id":         int64(a.ID),
		"name":       a.Name,
		"level":      int64(a.Level),
		"profession": int64(a.Profession),
		"money":      a.Money,
		"emoney":     a.EMoney,
		"mate":       a.Mate,
		"map_id":     int64(a.Position.MapID),
		"x":          int64(a.Position.X),
		"y":          int64(a.Position.Y),
	}
}

func roleVars(r *schema.RoleRef) map[string]any {
	if r == nil {
		r = &schema.RoleRef{Name: noneLabel}
	}
	return map[string]any{
		"present": r.ID != 0,
		"id":      int64(r.ID),
		"name":    r.Name,
		"kind":    r.Kind,
		"map_id":  int64(r.Position.MapID),
		"x":       int64(r.Position.X),
		"y":       int64(r.Position.Y),
	}
}

func itemVars(it *schema.ItemRef) map[string]any {
	if it == nil {
		it = &schema.ItemRef{}
	}
	return map[string]any{
		"present":    it.ID != 0,
		"id":         int64(it.ID),
		"type":       int64(it.Type),
		"amount":     int64(it.Amount),
		"durability": int64(it.Durability),
	}
}
