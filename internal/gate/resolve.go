package gate

// Inputs are the two independently arriving feeds the gate combines.
type Inputs struct {
	SessionReady bool
	Session      *Session
	ProfileReady bool
	Profile      *Profile
}

// Resolve maps inputs to an access state. It fails closed: a missing profile
// or a role outside the allow-list resolves to Unauthorized.
func Resolve(in Inputs) State {
	switch {
	case !in.SessionReady:
		return Initializing
	case in.Session == nil:
		return Unauthenticated
	case !in.ProfileReady:
		return Initializing
	case in.Profile == nil:
		return Unauthorized
	case !in.Profile.Role.Allowed():
		return Unauthorized
	default:
		return Authorized
	}
}
