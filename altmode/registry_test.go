package altmode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/hwmux"
	"github.com/BertoldVdb/PDAltMode/partner"
	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

func TestRegistry(t *testing.T) {
	a := &countingHandler{svid: 0x1234}
	b := &countingHandler{svid: 0x5678}

	r, err := altmode.NewRegistry(a, b)
	require.NoError(t, err)

	assert.Equal(t, []uint16{0x1234, 0x5678}, r.SVIDs())
	assert.Same(t, b, r.Lookup(0x5678))
	assert.Nil(t, r.Lookup(0x9999))

	handlers := r.Handlers()
	require.Len(t, handlers, 2)
	handlers[0] = nil
	assert.Same(t, a, r.Handlers()[0])

	_, err = altmode.NewRegistry(a, &countingHandler{svid: 0x1234})
	assert.Error(t, err)
}

func newEngine(t *testing.T, modes []uint16, extra ...altmode.Handler) (*altmode.Engine, error) {
	t.Helper()
	mux := hwmux.NewPorts(nil, hwmux.NewSim())
	return altmode.New(altmode.Options{
		Ports:        []altmode.PortConfig{{}},
		PolicyEngine: partner.NewLoopback(),
		Mux:          mux,
		HPD:          mux,
		Logger:       quietLogger(),
		SVDMVersion:  pdvdm.Version20,
		Modes:        modes,
		Handlers:     extra,
	})
}

func TestDefaultRegistryOrder(t *testing.T) {
	e, err := newEngine(t, nil)
	require.NoError(t, err)

	assert.Equal(t, []uint16{pdvdm.SVIDGoogle, pdvdm.SVIDDisplayPort, pdvdm.SVIDIntel}, e.Registry().SVIDs())

	gfu := e.Registry().Lookup(pdvdm.SVIDGoogle)
	require.NotNil(t, gfu)
	assert.NoError(t, gfu.Enter(0, 0))
	assert.Equal(t, 0, gfu.Status(0, make([]uint32, pdvdm.MaxObjects)))
}

func TestRegistryExtraHandlers(t *testing.T) {
	e, err := newEngine(t, []uint16{pdvdm.SVIDDisplayPort}, &countingHandler{svid: 0x1234})
	require.NoError(t, err)
	assert.Equal(t, []uint16{pdvdm.SVIDDisplayPort, 0x1234}, e.Registry().SVIDs())

	_, err = newEngine(t, []uint16{pdvdm.SVIDDisplayPort}, &countingHandler{svid: pdvdm.SVIDDisplayPort})
	assert.Error(t, err)

	_, err = newEngine(t, []uint16{0x1234})
	assert.Error(t, err)
}
