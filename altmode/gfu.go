package altmode

import "github.com/BertoldVdb/PDAltMode/pdvdm"

// gfuHandler is the Google firmware update mode. It carries no state; the
// mode only has to be entered for the partner to expose its update
// interface.
type gfuHandler struct{}

func (gfuHandler) SVID() uint16                { return pdvdm.SVIDGoogle }
func (gfuHandler) Enter(int, uint32) error     { return nil }
func (gfuHandler) Status(int, []uint32) int    { return 0 }
func (gfuHandler) Config(int, []uint32) int    { return 0 }
func (gfuHandler) PostConfig(int)              {}
func (gfuHandler) Attention(int, []uint32) int { return 0 }
func (gfuHandler) Exit(int)                    {}
