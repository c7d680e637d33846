package diff

import "github.com/small-frappuccino/eventcore/pkg/model"

// Rule compares one tracked field of S and reports at most one Change.
type Rule[S any] func(old, cur S) (Change, bool)

// FieldRule builds a Rule from a field accessor, an equality and a record
// constructor.
func FieldRule[S, V any](get func(S) V, equal func(a, b V) bool, build func(old, cur V) Change) Rule[S] {
	return func(old, cur S) (Change, bool) {
		o, c := get(old), get(cur)
		if equal(o, c) {
			return nil, false
		}
		return build(o, c), true
	}
}

// ValueRule is a FieldRule using ==.
func ValueRule[S any, V comparable](get func(S) V, build func(old, cur V) Change) Rule[S] {
	return FieldRule(get, func(a, b V) bool { return a == b }, build)
}

// Differ runs an ordered list of rules against a pair of snapshots.
type Differ[S any] struct {
	rules []Rule[S]
}

// New returns a Differ that evaluates rules in the given order.
func New[S any](rules ...Rule[S]) *Differ[S] {
	return &Differ[S]{rules: rules}
}

// Diff returns one Change per rule whose field differs, in rule order.
// Identical snapshots yield nil.
func (d *Differ[S]) Diff(old, cur S) []Change {
	var out []Change
	for _, rule := range d.rules {
		if c, ok := rule(old, cur); ok {
			out = append(out, c)
		}
	}
	return out
}

// Roles computes the set delta between two role sets. It reports false when
// both the added and removed sets are empty.
func Roles(old, cur model.RoleSet) (RolesChanged, bool) {
	added := cur.Difference(old)
	removed := old.Difference(cur)
	if len(added) == 0 && len(removed) == 0 {
		return RolesChanged{}, false
	}
	return RolesChanged{Added: added, Removed: removed}, true
}

func rolesRule(get func(model.Member) model.RoleSet) Rule[model.Member] {
	return func(old, cur model.Member) (Change, bool) {
		c, ok := Roles(get(old), get(cur))
		if !ok {
			return nil, false
		}
		return c, true
	}
}

// Activities are the same when both are absent or both carry the same name.
func sameActivity(a, b model.Optional[model.Activity]) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Value.Name == b.Value.Name
}

func sameString(a, b model.Optional[string]) bool { return a.Equal(b) }

func sameIdentity(a, b model.User) bool {
	return a.Username == b.Username && a.Discriminator == b.Discriminator && a.Avatar == b.Avatar
}

// Member tracks nickname and role membership.
var Member = New(
	FieldRule(func(m model.Member) model.Optional[string] { return m.Nick }, sameString,
		func(o, c model.Optional[string]) Change { return NickChanged{Old: o, New: c} }),
	rolesRule(func(m model.Member) model.RoleSet { return m.Roles }),
)

// Presence tracks status and the active activity.
var Presence = New(
	ValueRule(func(p model.Presence) model.Status { return p.Status },
		func(o, c model.Status) Change { return StatusChanged{Old: o, New: c} }),
	FieldRule(func(p model.Presence) model.Optional[model.Activity] { return p.Activity }, sameActivity,
		func(o, c model.Optional[model.Activity]) Change { return ActivityChanged{Old: o, New: c} }),
)

// User tracks the public identity fields as a single record.
var User = New(
	FieldRule(func(u model.User) model.User { return u }, sameIdentity,
		func(o, c model.User) Change { return UserChanged{Old: o, New: c} }),
)

// Channel tracks name, topic, position and permission overwrites. Callers
// fill fields the update did not carry from the prior snapshot before diffing.
var Channel = New(
	ValueRule(func(c model.Channel) string { return c.Name },
		func(o, c string) Change { return ChannelNameChanged{Old: o, New: c} }),
	FieldRule(func(c model.Channel) model.Optional[string] { return c.Topic }, sameString,
		func(o, c model.Optional[string]) Change { return ChannelTopicChanged{Old: o, New: c} }),
	ValueRule(func(c model.Channel) int { return c.Position },
		func(o, c int) Change { return ChannelPositionChanged{Old: o, New: c} }),
	FieldRule(func(c model.Channel) []model.Overwrite { return c.Overwrites }, model.SameOverwrites,
		func(o, c []model.Overwrite) Change { return ChannelOverwritesChanged{Old: o, New: c} }),
)
