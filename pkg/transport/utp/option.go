package utp

import (
	"github.com/lthibault/utpwerks/pkg/transport/generic"
	core "github.com/lthibault/utpwerks/pkg/utp"
)

// Option for utp transport
type Option func(*Transport) (prev Option)

// OptLoop sets the loop that listens and dials
func OptLoop(l *core.Loop) Option {
	return func(t *Transport) (prev Option) {
		prev = OptLoop(t.loop)
		t.loop = l
		OptGeneric(generic.OptListener(l))(t)
		OptGeneric(generic.OptDialer(l))(t)
		return
	}
}

// OptGeneric sets an option on the underlying generic transport
func OptGeneric(opt generic.Option) Option {
	return func(t *Transport) Option {
		return OptGeneric(opt(&t.Transport))
	}
}
