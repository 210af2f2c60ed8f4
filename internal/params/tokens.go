package params

import (
	"sort"
	"strconv"

	"github.com/rendis/worldscript/pkg/schema"
)

// Neutral substitutions used when a context field or provider entry is absent.
const (
	DefaultNumber = "0"
	DefaultName   = "None"
)

type simpleToken struct {
	name  string
	value func(ec *schema.ExecutionContext) string
}

// simpleTokens is ordered longest name first so a token is never shadowed by
// a shorter one sharing its prefix.
var simpleTokens = sortTokens([]simpleToken{
	{"%user_name", actorStr(func(a *schema.ActorRef) string { return a.Name })},
	{"%user_id", actorNum(func(a *schema.ActorRef) int64 { return int64(a.ID) })},
	{"%user_lev", actorNum(func(a *schema.ActorRef) int64 { return int64(a.Level) })},
	{"%user_pro", actorNum(func(a *schema.ActorRef) int64 { return int64(a.Profession) })},
	{"%user_money", actorNum(func(a *schema.ActorRef) int64 { return a.Money })},
	{"%user_emoney", actorNum(func(a *schema.ActorRef) int64 { return a.EMoney })},
	{"%user_mate", actorStr(func(a *schema.ActorRef) string { return a.Mate })},
	{"%user_map_id", actorNum(func(a *schema.ActorRef) int64 { return int64(a.Position.MapID) })},
	{"%user_map_name", actorStr(func(a *schema.ActorRef) string { return a.Position.MapName })},
	{"%user_map_x", actorNum(func(a *schema.ActorRef) int64 { return int64(a.Position.X) })},
	{"%user_map_y", actorNum(func(a *schema.ActorRef) int64 { return int64(a.Position.Y) })},

	{"%role_name", roleStr(func(r *schema.RoleRef) string { return r.Name })},
	{"%role_id", roleNum(func(r *schema.RoleRef) int64 { return int64(r.ID) })},
	{"%role_map_id", roleNum(func(r *schema.RoleRef) int64 { return int64(r.Position.MapID) })},
	{"%role_map_x", roleNum(func(r *schema.RoleRef) int64 { return int64(r.Position.X) })},
	{"%role_map_y", roleNum(func(r *schema.RoleRef) int64 { return int64(r.Position.Y) })},

	{"%item_id", itemNum(func(i *schema.ItemRef) int64 { return int64(i.ID) })},
	{"%item_type", itemNum(func(i *schema.ItemRef) int64 { return int64(i.Type) })},
	{"%item_amount", itemNum(func(i *schema.ItemRef) int64 { return int64(i.Amount) })},
	{"%item_dur", itemNum(func(i *schema.ItemRef) int64 { return int64(i.Durability) })},

	{"%map_name", mapName},
	{"%accept0", func(ec *schema.ExecutionContext) string {
		if ec == nil {
			return ""
		}
		return ec.Input
	}},
})

func sortTokens(tokens []simpleToken) []simpleToken {
	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i].name) > len(tokens[j].name)
	})
	return tokens
}

func actorStr(f func(*schema.ActorRef) string) func(*schema.ExecutionContext) string {
	return func(ec *schema.ExecutionContext) string {
		if ec == nil || ec.Actor == nil {
			return DefaultName
		}
		return nameOrDefault(f(ec.Actor))
	}
}

func actorNum(f func(*schema.ActorRef) int64) func(*schema.ExecutionContext) string {
	return func(ec *schema.ExecutionContext) string {
		if ec == nil || ec.Actor == nil {
			return DefaultNumber
		}
		return strconv.FormatInt(f(ec.Actor), 10)
	}
}

func roleStr(f func(*schema.RoleRef) string) func(*schema.ExecutionContext) string {
	return func(ec *schema.ExecutionContext) string {
		if ec == nil || ec.Role == nil {
			return DefaultName
		}
		return nameOrDefault(f(ec.Role))
	}
}

func roleNum(f func(*schema.RoleRef) int64) func(*schema.ExecutionContext) string {
	return func(ec *schema.ExecutionContext) string {
		if ec == nil || ec.Role == nil {
			return DefaultNumber
		}
		return strconv.FormatInt(f(ec.Role), 10)
	}
}

func itemNum(f func(*schema.ItemRef) int64) func(*schema.ExecutionContext) string {
	return func(ec *schema.ExecutionContext) string {
		if ec == nil || ec.Item == nil {
			return DefaultNumber
		}
		return strconv.FormatInt(f(ec.Item), 10)
	}
}

func mapName(ec *schema.ExecutionContext) string {
	if ec == nil {
		return DefaultName
	}
	if ec.Actor != nil && ec.Actor.Position.MapName != "" {
		return ec.Actor.Position.MapName
	}
	if ec.Role != nil && ec.Role.Position.MapName != "" {
		return ec.Role.Position.MapName
	}
	return DefaultName
}

func nameOrDefault(s string) string {
	if s == "" {
		return DefaultName
	}
	return s
}
