package arp

import (
	"bufio"
	"io"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"go-arp-sim/src/internal/errors"
)

// ====== Static table ======
//
// One entry per line:
//
//	<node> [<interface>] <protocol-type> <address> <hardware-type> <hardware-address> <timeout>
//
// <node> is X (every node), a node name, a node id or a glob over either.
// <address> is an IPv4 literal or <node>:<interface>. <timeout> is whole
// seconds or a duration such as 90s, and 0 means the entry never expires.

// StaticEntry is one parsed line of a static table.
type StaticEntry struct {
	Line         int
	Selector     string
	Interface    int // meaningful when HasInterface
	HasInterface bool
	Protocol     ProtocolType
	Address      netip.Addr // set for literal addresses
	Ref          string     // set for <node>:<interface> references
	Hardware     HardwareAddress
	Timeout      time.Duration

	match glob.Glob // nil matches every node
}

// Matches reports whether the entry applies to the node called name with
// the given id.
func (e StaticEntry) Matches(name string, id int) bool {
	if e.match == nil {
		return true
	}
	return e.match.Match(name) || e.match.Match(strconv.Itoa(id))
}

// ParseStatic reads a static table.
func ParseStatic(r io.Reader) ([]StaticEntry, error) {
	var entries []StaticEntry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		e, err := parseStaticLine(fields)
		if err != nil {
			return nil, errors.Configf("static arp table line %d: %v", lineNo, err)
		}
		e.Line = lineNo
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotate(err, "read static arp table")
	}
	return entries, nil
}

func parseStaticLine(fields []string) (StaticEntry, error) {
	var e StaticEntry

	switch len(fields) {
	case 6:
	case 7:
		idx, err := strconv.Atoi(fields[1])
		if err != nil || idx < 0 {
			return e, errors.Errorf("bad interface index %q", fields[1])
		}
		e.Interface, e.HasInterface = idx, true
		fields = append(fields[:1], fields[2:]...)
	default:
		return e, errors.Errorf("want 6 or 7 fields, got %d", len(fields))
	}

	e.Selector = fields[0]
	if e.Selector != "X" && e.Selector != "x" {
		g, err := glob.Compile(e.Selector)
		if err != nil {
			return e, errors.Errorf("bad node selector %q: %v", e.Selector, err)
		}
		e.match = g
	}

	proto, err := ParseProtocolType(fields[1])
	if err != nil {
		return e, err
	}
	e.Protocol = proto

	if e.Address, e.Ref, err = parseStaticAddress(fields[2]); err != nil {
		return e, err
	}

	hwType, err := ParseHardwareType(fields[3])
	if err != nil {
		return e, err
	}
	if e.Hardware, err = ParseHardwareAddress(hwType, fields[4]); err != nil {
		return e, err
	}

	if e.Timeout, err = parseTimeout(fields[5]); err != nil {
		return e, err
	}
	return e, nil
}

func parseStaticAddress(s string) (netip.Addr, string, error) {
	if addr, err := netip.ParseAddr(s); err == nil {
		if !addr.Is4() {
			return netip.Addr{}, "", errors.Errorf("address %q is not IPv4", s)
		}
		return addr, "", nil
	}
	node, intf, ok := strings.Cut(s, ":")
	if !ok || node == "" || intf == "" || strings.Contains(intf, ":") {
		return netip.Addr{}, "", errors.Errorf("bad address %q", s)
	}
	return netip.Addr{}, s, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, errors.Errorf("negative timeout %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Errorf("bad timeout %q", s)
	}
	if d < 0 {
		return 0, errors.Errorf("negative timeout %v", d)
	}
	return d, nil
}

// AddressResolver turns a <node>:<interface> reference into an address.
type AddressResolver func(ref string) (netip.Addr, error)

// LoadStatic installs the entries that apply to this node, identified by
// id. Entries without an interface index are owned by the interface whose
// subnet holds the address, falling back to the lowest-numbered interface.
// When two entries name the same address the first one wins. It returns the
// number of entries installed.
func (m *Module) LoadStatic(entries []StaticEntry, id int, resolve AddressResolver) (int, error) {
	now := m.sched.Now()
	loaded := 0

	for _, e := range entries {
		if !e.Matches(m.node, id) {
			continue
		}

		addr := e.Address
		if e.Ref != "" {
			if resolve == nil {
				return loaded, errors.Configf("static arp table line %d: cannot resolve %q", e.Line, e.Ref)
			}
			var err error
			if addr, err = resolve(e.Ref); err != nil {
				return loaded, errors.Configf("static arp table line %d: %v", e.Line, err)
			}
		}

		var intf *Interface
		if e.HasInterface {
			intf = m.ifaces[e.Interface]
			if intf == nil {
				return loaded, errors.Configf("static arp table line %d: node %s has no interface %d",
					e.Line, m.node, e.Interface)
			}
		} else {
			intf = m.interfaceFor(addr)
		}
		if intf == nil {
			return loaded, errors.Configf("static arp table line %d: node %s has no interfaces", e.Line, m.node)
		}
		if e.Hardware.Type != intf.Hardware.Type {
			return loaded, errors.Configf("static arp table line %d: %s address on %s interface %d",
				e.Line, e.Hardware.Type, intf.Hardware.Type, intf.Index)
		}

		err := m.table.Insert(addr, intf.Index, e.Protocol, e.Hardware, Static, e.Timeout, now)
		if errors.Cause(err) == ErrEntryExists {
			m.log.Warn().Int("line", e.Line).Stringer("addr", addr).Msg("duplicate static arp entry ignored")
			continue
		}
		if err != nil {
			return loaded, errors.Annotatef(err, "static arp table line %d", e.Line)
		}
		loaded++
	}
	return loaded, nil
}

// interfaceFor returns the interface whose subnet contains addr, or the
// lowest-numbered interface when none does.
func (m *Module) interfaceFor(addr netip.Addr) *Interface {
	indices := make([]int, 0, len(m.ifaces))
	for idx := range m.ifaces {
		indices = append(indices, idx)
	}
	if len(indices) == 0 {
		return nil
	}
	slices.Sort(indices)

	for _, idx := range indices {
		intf := m.ifaces[idx]
		if intf.Address.IsValid() && intf.Address.Masked().Contains(addr) {
			return intf
		}
	}
	return m.ifaces[indices[0]]
}
