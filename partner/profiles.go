package partner

import (
	"fmt"
	"sort"

	"github.com/BertoldVdb/PDAltMode/pdvdm"
)

// DPSink is a modal DisplayPort sink offering the given pin assignments on
// its receptacle.
func DPSink(pins uint8) *Device {
	return &Device{
		IDHeader: pdvdm.MakeIDHeader(pdvdm.ProductPeripheral, true, 0x1234),
		Product:  pdvdm.MakeProductVDO(0x5678, 0x0100),
		SVIDs:    []uint16{pdvdm.SVIDDisplayPort},
		Modes: map[uint16][]uint32{
			pdvdm.SVIDDisplayPort: {uint32(pdvdm.MakeDPModeVDO(pins, 0, true, pdvdm.DPCapSink))},
		},
		Version: pdvdm.Version20,
		Status: pdvdm.DPStatus{
			Connected: pdvdm.DPConnUFPD,
			HPDLevel:  true,
		},
	}
}

// TBTDock is a dock offering Thunderbolt-compatible mode and DisplayPort.
func TBTDock() *Device {
	d := DPSink(pdvdm.PinC | pdvdm.PinD)
	d.SVIDs = []uint16{pdvdm.SVIDIntel, pdvdm.SVIDDisplayPort}
	d.Modes[pdvdm.SVIDIntel] = []uint32{uint32(pdvdm.MakeTBTDeviceVDO(true, false, false, false))}
	d.Status.MFPreferred = true
	return d
}

// PassiveCable is a passive USB 3.2 Gen2 cable without modes.
func PassiveCable() *Device {
	return &Device{
		IDHeader: pdvdm.MakeIDHeader(pdvdm.ProductPassiveCable, false, 0x2222),
		Product:  pdvdm.MakeProductVDO(0x0001, 0x0100),
		ProductVDOs: []uint32{
			uint32(pdvdm.MakeCableVDO(pdvdm.Rev30SpeedGen2, false, 0)),
		},
		Version: pdvdm.Version20,
	}
}

// ActiveCable is an active Thunderbolt cable. sopPP adds a second plug
// controller answering on SOP''.
func ActiveCable(sopPP bool) *Device {
	return &Device{
		IDHeader: pdvdm.MakeIDHeader(pdvdm.ProductActiveCable, true, 0x3333),
		Product:  pdvdm.MakeProductVDO(0x0002, 0x0100),
		ProductVDOs: []uint32{
			uint32(pdvdm.MakeCableVDO(pdvdm.Rev30SpeedGen3, sopPP, pdvdm.VDOVersion13)),
		},
		SVIDs: []uint16{pdvdm.SVIDIntel},
		Modes: map[uint16][]uint32{
			pdvdm.SVIDIntel: {uint32(pdvdm.TBTCable{Speed: pdvdm.TBTSpeedGen3, Active: true, Retimer: true}.VDO())},
		},
		Version: pdvdm.Version20,
	}
}

// Plug is the far end plug controller of an active cable.
func Plug() *Device {
	return &Device{Version: pdvdm.Version20}
}

var profiles = map[string]func() (sop, cable, plug *Device){
	"dp": func() (*Device, *Device, *Device) {
		return DPSink(pdvdm.PinC | pdvdm.PinE), nil, nil
	},
	"dp-dock": func() (*Device, *Device, *Device) {
		d := DPSink(pdvdm.PinD)
		d.Status.MFPreferred = true
		return d, nil, nil
	},
	"tbt": func() (*Device, *Device, *Device) {
		return TBTDock(), PassiveCable(), nil
	},
	"tbt-active": func() (*Device, *Device, *Device) {
		return TBTDock(), ActiveCable(true), Plug()
	},
}

// Profiles returns the names accepted by Profile.
func Profiles() []string {
	var out []string
	for name := range profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Profile builds a named partner setup. cable and plug may be nil.
func Profile(name string) (sop, cable, plug *Device, err error) {
	f, ok := profiles[name]
	if !ok {
		return nil, nil, nil, fmt.Errorf("unknown partner profile %q", name)
	}
	sop, cable, plug = f()
	return sop, cable, plug, nil
}

// AttachProfile attaches a named setup to port.
func (l *Loopback) AttachProfile(port int, name string) error {
	sop, cable, plug, err := Profile(name)
	if err != nil {
		return err
	}
	l.Attach(port, pdvdm.SOP, sop)
	l.Attach(port, pdvdm.SOPPrime, cable)
	l.Attach(port, pdvdm.SOPPrimePrime, plug)
	return nil
}
