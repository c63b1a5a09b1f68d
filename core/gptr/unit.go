package gptr

// GlobalUnit identifies a unit within the universe established at
// init. TeamUnit identifies a unit within one specific team. Spec
// section 3 requires the two scopes be distinguished so that mixing
// them is a compile-time error; they are deliberately distinct defined
// types rather than aliases of int32; a value of one never implicitly
// converts to the other.
type GlobalUnit int32

// TeamUnit identifies a unit's position within a specific team's
// member ordering. The same physical unit has a different TeamUnit in
// every team it belongs to (except by coincidence).
type TeamUnit int32

// NotAMember is the TeamUnit value a caller observes for a team it is
// not part of from its own view (spec section 3, team invariant).
const NotAMember TeamUnit = -1

// IsMember reports whether t designates an actual team-local position.
func (t TeamUnit) IsMember() bool { return t != NotAMember }
