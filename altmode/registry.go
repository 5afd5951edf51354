package altmode

import "fmt"

// Handler implements one alternate mode. Status and Config write a complete
// VDM into payload and return the number of objects written; zero means NAK
// and a negative value means BUSY. Attention returns one for ACK and zero
// for NAK.
type Handler interface {
	SVID() uint16
	Enter(port int, modeCaps uint32) error
	Status(port int, payload []uint32) int
	Config(port int, payload []uint32) int
	PostConfig(port int)
	Attention(port int, payload []uint32) int
	Exit(port int)
}

// Registry is the fixed table of mode handlers, in priority order.
type Registry struct {
	handlers []Handler
	bySVID   map[uint16]Handler
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{
		bySVID: make(map[uint16]Handler),
	}

	for _, m := range handlers {
		svid := m.SVID()
		if _, ok := r.bySVID[svid]; ok {
			return nil, fmt.Errorf("svid %04x registered twice", svid)
		}
		r.bySVID[svid] = m
		r.handlers = append(r.handlers, m)
	}

	return r, nil
}

func (r *Registry) Lookup(svid uint16) Handler {
	return r.bySVID[svid]
}

// Handlers returns the handlers in registration order.
func (r *Registry) Handlers() []Handler {
	return append([]Handler{}, r.handlers...)
}

func (r *Registry) SVIDs() []uint16 {
	out := make([]uint16, len(r.handlers))
	for i, m := range r.handlers {
		out[i] = m.SVID()
	}
	return out
}
