package board

import (
	"fmt"
	"os"
	"sort"

	"github.com/u-root/u-root/pkg/dt"
)

// Compatible string of the port nodes in a device tree.
const Compatible = "named-usbc-port"

func stringProp(n *dt.Node, name string) (string, bool) {
	p, ok := n.LookProperty(name)
	if !ok {
		return "", false
	}
	v, err := p.AsType(dt.StringType)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func hasProp(n *dt.Node, name string) bool {
	_, ok := n.LookProperty(name)
	return ok
}

type dtPort struct {
	reg  uint32
	port Port
}

// FromFDT collects the nodes compatible with "named-usbc-port". The reg
// property gives the port number. The root model names the board.
func FromFDT(fdt *dt.FDT) (Board, error) {
	var b Board
	var ports []dtPort

	if fdt.RootNode == nil {
		return Board{}, fmt.Errorf("device tree has no root node")
	}
	b.Name, _ = stringProp(fdt.RootNode, "model")

	err := fdt.RootNode.Walk(func(n *dt.Node) error {
		if c, ok := stringProp(n, "compatible"); !ok || c != Compatible {
			return nil
		}

		p, ok := n.LookProperty("reg")
		if !ok {
			return fmt.Errorf("%s: missing reg", n.Name)
		}
		reg, err := p.AsU32()
		if err != nil {
			return fmt.Errorf("%s: illegal reg (%v)", n.Name, err)
		}

		port := Port{
			Name:             n.Name,
			MFAllow:          hasProp(n, "mf-allow"),
			SafeBeforeConfig: hasProp(n, "safe-before-config"),
		}
		port.Mux, _ = stringProp(n, "mux")

		if p, ok := n.LookProperty("tbt-max-speed"); ok {
			speed, err := p.AsU32()
			if err != nil {
				return fmt.Errorf("%s: illegal tbt-max-speed (%v)", n.Name, err)
			}
			port.MaxTBTSpeed = int(speed)
		}
		if hasProp(n, "discover-cable") {
			b.DiscoverCable = true
		}

		ports = append(ports, dtPort{reg: reg, port: port})
		return nil
	})
	if err != nil {
		return Board{}, err
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].reg < ports[j].reg })
	for i, p := range ports {
		if int(p.reg) != i {
			return Board{}, fmt.Errorf("%s: port numbers must be contiguous from 0, got %d", p.port.Name, p.reg)
		}
		b.Ports = append(b.Ports, p.port)
	}

	if err := b.Validate(); err != nil {
		return Board{}, err
	}
	return b, nil
}

func LoadDTB(path string) (Board, error) {
	f, err := os.Open(path)
	if err != nil {
		return Board{}, err
	}
	defer f.Close()

	fdt, err := dt.ReadFDT(f)
	if err != nil {
		return Board{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return FromFDT(fdt)
}
