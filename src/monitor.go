package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"go-arp-sim/src/arp"
)

// ====== Tables and end-of-run statistics ======

// dump_arp_table prints the node's live translation table
func dump_arp_table(w io.Writer, node *Node) {
	entries := node.arp.Entries()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address.Less(entries[j].Address)
	})

	fmt.Fprintf(w, "\n=== ARP Table for Node: %s (t=%v) ===\n", node.name, node.graph.sched.Now())
	fmt.Fprintf(w, "%-16s %-42s %-10s %-8s %-10s\n", "IP Address", "Hardware Address", "Interface", "Kind", "Expires")
	if len(entries) == 0 {
		fmt.Fprintf(w, "(empty)\n")
		return
	}
	for _, e := range entries {
		intf_name := "?"
		if intf := node.interfaceAt(e.Interface); intf != nil {
			intf_name = intf.name
		}
		expires := e.ExpireTime.String()
		if e.Kind == arp.Static {
			expires = "never"
		}
		fmt.Fprintf(w, "%-16s %-42s %-10s %-8s %-10s\n", e.Address, e.Hardware, intf_name, e.Kind, expires)
	}
}

// dump_arp_pending prints the node's outstanding resolutions
func dump_arp_pending(w io.Writer, node *Node) {
	pending := node.arp.Pending()

	fmt.Fprintf(w, "\n=== Pending ARP Requests for Node: %s ===\n", node.name)
	fmt.Fprintf(w, "%-16s %-10s %-12s %-8s %-8s %-14s\n", "IP Address", "Interface", "Sent", "Retries", "Queued", "Purpose")
	if len(pending) == 0 {
		fmt.Fprintf(w, "(none)\n")
		return
	}
	for _, p := range pending {
		intf_name := "?"
		if intf := node.interfaceAt(p.Interface); intf != nil {
			intf_name = intf.name
		}
		fmt.Fprintf(w, "%-16s %-10s %-12v %-8d %-8d %-14s\n",
			p.Address, intf_name, p.SentTime, p.RetriesRemaining, p.Buffered, p.Purpose)
	}
}

// dump_address_checks prints the duplicate-address probe outcomes of a node
func dump_address_checks(w io.Writer, node *Node) {
	results := node.checker.Results()
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(w, "Address checks:\n")
	for _, r := range results {
		verdict := "available"
		if r.duplicate {
			verdict = "duplicate"
		}
		fmt.Fprintf(w, "  %-10v %-8s %-16s %s\n", r.at, r.intf, r.candidate, verdict)
	}
}

// print_stats writes the end-of-run report: per-interface ARP counters,
// forwarding drops by reason and local deliveries
func print_stats(w io.Writer, graph *Graph) {
	fmt.Fprintf(w, "\n=== Statistics: %s at t=%v (%d events) ===\n",
		graph.topology_name, graph.sched.Now(), graph.sched.Fired())

	for _, node := range graph.node_list {
		fmt.Fprintf(w, "\nNode %s\n", node.name)
		fmt.Fprintf(w, "  %-8s %6s %6s %6s %6s %6s %6s %6s %6s %6s %6s %6s %6s\n",
			"Intf", "ReqTx", "ReqRx", "RepTx", "RepRx", "Buf", "Rel", "Drop", "Disc",
			"New", "Upd", "Aged", "Del")
		for _, s := range node.arp.Stats() {
			intf_name := fmt.Sprintf("#%d", s.Interface)
			if intf := node.interfaceAt(s.Interface); intf != nil {
				intf_name = intf.name
			}
			fmt.Fprintf(w, "  %-8s %6d %6d %6d %6d %6d %6d %6d %6d %6d %6d %6d %6d\n",
				intf_name, s.RequestsSent, s.RequestsReceived, s.RepliesSent, s.RepliesReceived,
				s.PacketsBuffered, s.PacketsReleased, s.PacketsDropped, s.PacketsDiscarded,
				s.EntriesCreated, s.EntriesUpdated, s.EntriesAgedOut, s.EntriesDeleted)
		}

		f := node.fwd
		fmt.Fprintf(w, "  IP: sent %d, forwarded %d, delivered %d\n",
			f.sent.Load(), f.forwarded.Load(), f.delivered.Load())

		var drops []string
		for _, reason := range forwarder_drop_reasons {
			if n := f.drops[reason].Load(); n > 0 {
				drops = append(drops, fmt.Sprintf("%s=%d", reason, n))
			}
		}
		if len(drops) > 0 {
			fmt.Fprintf(w, "  Drops: %s\n", strings.Join(drops, " "))
		}
		dump_address_checks(w, node)
	}
	fmt.Fprintln(w)
}
