package main

import (
	"go-arp-sim/src/internal/errors"
)

// send_frame puts a frame on the link of local_intf. The frame reaches the
// interface on the other side once the link delay has elapsed.
//
// Args:
//   - local_intf: outgoing interface
//   - frame: complete link-layer frame
//
// Returns: error when the interface cannot transmit
func send_frame(local_intf *Interface, frame []byte) error {
	if local_intf == nil {
		return errors.New("local interface cannot be nil")
	}
	if len(frame) == 0 {
		return errors.New("empty frame")
	}

	// 1. Get sending and neighbor node
	sending_node := local_intf.att_node
	if sending_node == nil || sending_node.graph == nil {
		return errors.Errorf("interface %s is not attached to a topology", local_intf.name)
	}

	remote_intf := get_remote_interface(local_intf)
	if remote_intf == nil {
		return errors.Errorf("no neighbor on interface %s", get_interface_name(local_intf))
	}

	// 2. Sanity checks
	if local_intf.down {
		local_intf.frames_dropped++
		return errors.Errorf("interface %s is down", get_interface_name(local_intf))
	}

	// 3. Copy the frame; the sender may reuse its buffer
	buf := make([]byte, len(frame))
	copy(buf, frame)

	// 4. Deliver after the propagation delay
	local_intf.frames_out++
	nbr_node := remote_intf.att_node
	sending_node.graph.sched.After(local_intf.link.delay, func() {
		layer_2_frame_recv(nbr_node, remote_intf, buf)
	})

	log_packet_transmission(sending_node, nbr_node, local_intf, remote_intf, len(buf))
	return nil
}

// log packet transmission for debugging/statistics
func log_packet_transmission(src_node, dst_node *Node, src_intf, dst_intf *Interface, packet_size int) {
	LogDebug("LOG: %v: Frame - Source: %s[%s] -> Destination: %s[%s], Size: %d bytes",
		src_node.graph.sched.Now(),
		src_node.name, get_interface_name(src_intf),
		dst_node.name, get_interface_name(dst_intf),
		packet_size)
}
