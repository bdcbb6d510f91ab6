package supervisor

// PassThrough allows everything. It is useful as a roster placeholder and
// as an observation point for events.
type PassThrough struct {
	Base
}

// NewPassThrough creates a pass-through supervisor.
func NewPassThrough(id, name string, perms Permissions) *PassThrough {
	return &PassThrough{Base: NewBase(id, name, perms)}
}

// Kind returns KindPassThrough.
func (p *PassThrough) Kind() Kind { return KindPassThrough }
