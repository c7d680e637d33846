// Package diff compares two snapshots of one entity kind and reports the
// semantic changes between them. Every function here is pure.
package diff

import "github.com/small-frappuccino/eventcore/pkg/model"

// Kind tags a Change.
type Kind string

const (
	KindStatus            Kind = "status"
	KindNick              Kind = "nick"
	KindActivity          Kind = "activity"
	KindRoles             Kind = "roles"
	KindUser              Kind = "user"
	KindChannelName       Kind = "channel_name"
	KindChannelTopic      Kind = "channel_topic"
	KindChannelPosition   Kind = "channel_position"
	KindChannelOverwrites Kind = "channel_overwrites"
)

// Change is one typed difference between two snapshots.
type Change interface {
	ChangeKind() Kind
}

type StatusChanged struct {
	Old, New model.Status
}

type NickChanged struct {
	Old, New model.Optional[string]
}

type ActivityChanged struct {
	Old, New model.Optional[model.Activity]
}

// RolesChanged summarises every role delta of one update. Iteration order of
// Added and Removed is unspecified.
type RolesChanged struct {
	Added, Removed model.RoleSet
}

type UserChanged struct {
	Old, New model.User
}

type ChannelNameChanged struct {
	Old, New string
}

type ChannelTopicChanged struct {
	Old, New model.Optional[string]
}

type ChannelPositionChanged struct {
	Old, New int
}

type ChannelOverwritesChanged struct {
	Old, New []model.Overwrite
}

func (StatusChanged) ChangeKind() Kind            { return KindStatus }
func (NickChanged) ChangeKind() Kind              { return KindNick }
func (ActivityChanged) ChangeKind() Kind          { return KindActivity }
func (RolesChanged) ChangeKind() Kind             { return KindRoles }
func (UserChanged) ChangeKind() Kind              { return KindUser }
func (ChannelNameChanged) ChangeKind() Kind       { return KindChannelName }
func (ChannelTopicChanged) ChangeKind() Kind      { return KindChannelTopic }
func (ChannelPositionChanged) ChangeKind() Kind   { return KindChannelPosition }
func (ChannelOverwritesChanged) ChangeKind() Kind { return KindChannelOverwrites }
