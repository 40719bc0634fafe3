package main

import (
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go-arp-sim/src/arp"
	"go-arp-sim/src/internal/errors"
)

// Global topology var
var currentTopology *Graph

// Process-wide flags
var (
	logLevel    string
	metricsAddr string
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "arp-sim",
		Short: "A discrete-event ARP simulator in Go",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(logLevel); err != nil {
				return err
			}
			if metricsAddr != "" {
				serveMetrics(metricsAddr)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			startInteractiveShell()
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	rootCmd.AddCommand(newSimulateCommand())
	return rootCmd
}

// simulateFlags are the batch mode options
type simulateFlags struct {
	topology string
	duration time.Duration
	trace    bool
	linger   time.Duration
}

func (f *simulateFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	fs.StringVarP(&f.topology, "topology", "t", "topologies/triangle.yaml", "topology file")
	fs.DurationVarP(&f.duration, "duration", "d", time.Minute, "virtual time to simulate")
	fs.BoolVar(&f.trace, "trace", false, "dump every received frame")
	fs.DurationVar(&f.linger, "linger", 0, "keep serving metrics this long after the run")
	return fs
}

func newSimulateCommand() *cobra.Command {
	flags := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Load a topology, run it and print statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(flags)
		},
	}
	cmd.Flags().AddFlagSet(flags.flagSet())
	return cmd
}

func runSimulation(flags *simulateFlags) error {
	topology, err := load_topology_from_yaml(flags.topology)
	if err != nil {
		return err
	}
	setTopology(topology)
	topology.trace = flags.trace

	runErr := topology.Run(flags.duration)
	collector.snapshotPending()
	print_stats(out, topology)
	if runErr != nil {
		fmt.Fprintf(out, "Simulation halted: %v\n", runErr)
	}
	if metricsAddr != "" && flags.linger > 0 {
		time.Sleep(flags.linger)
	}
	return runErr
}

// setTopology replaces the loaded topology, releasing the old one
func setTopology(topology *Graph) {
	if currentTopology != nil {
		cleanup_graph_resources(currentTopology)
	}
	currentTopology = topology
	collector.setGraph(topology)
}

// ====== Interactive shell commands ======

func requireTopology() error {
	if currentTopology == nil {
		return errors.New("no topology loaded. Use 'load topology [filename]' first")
	}
	return nil
}

func lookupNode(name string) (*Node, error) {
	if err := requireTopology(); err != nil {
		return nil, err
	}
	node := get_node_by_name(currentTopology, name)
	if node == nil {
		LogError("Node '%s' not found in topology", name)
		return nil, errors.Errorf("node '%s' not found in topology", name)
	}
	return node, nil
}

func lookupInterface(node_name, if_name string) (*Interface, error) {
	node, err := lookupNode(node_name)
	if err != nil {
		return nil, err
	}
	intf := node_get_matching_intf_by_name(node, if_name)
	if intf == nil {
		return nil, errors.Errorf("interface '%s' not found on node '%s'", if_name, node_name)
	}
	return intf, nil
}

// reportRun prints the outcome of scheduled work that was just executed
func reportRun(err error) error {
	collector.snapshotPending()
	if err != nil {
		fmt.Fprintf(out, "Simulation halted: %v\n", err)
	}
	return nil
}

func newLoadCommand() *cobra.Command {
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load topology from YAML file",
	}
	loadCmd.AddCommand(&cobra.Command{
		Use:   "topology [filename]",
		Short: "Load topology from YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := "topologies/triangle.yaml"
			if len(args) > 0 {
				filename = args[0]
			}

			LogInfo("Loading topology: %s...", filename)
			fmt.Fprintf(out, "Loading topology: %s...\n", filename)
			topology, err := load_topology_from_yaml(filename)
			if err != nil {
				LogError("Error loading topology: %v", err)
				return err
			}
			setTopology(topology)
			fmt.Fprintf(out, "Successfully loaded topology: %s\n", get_topology_name(topology))
			return nil
		},
	})
	return loadCmd
}

func newShowCommand() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show commands",
	}
	showCmd.AddCommand(&cobra.Command{
		Use:   "topology",
		Short: "Show network topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTopology(); err != nil {
				return err
			}
			dump_graph_info(currentTopology)
			return nil
		},
	})
	showCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show ARP and forwarding statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTopology(); err != nil {
				return err
			}
			print_stats(out, currentTopology)
			return nil
		},
	})

	showNodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Show node information",
	}
	nodeViews := []struct {
		use, short string
		dump       func(*Node)
	}{
		{"arp", "Show the ARP table of a node", func(n *Node) { dump_arp_table(out, n) }},
		{"pending", "Show outstanding ARP requests of a node", func(n *Node) { dump_arp_pending(out, n) }},
		{"routes", "Show the routing table of a node", func(n *Node) { n.routes.DumpRoutingTable(out, n.name) }},
	}
	for _, view := range nodeViews {
		view := view
		showNodeCmd.AddCommand(&cobra.Command{
			Use:   view.use + " [node-name]",
			Short: view.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				node, err := lookupNode(args[0])
				if err != nil {
					return err
				}
				view.dump(node)
				return nil
			},
		})
	}
	showCmd.AddCommand(showNodeCmd)
	return showCmd
}

func newRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run commands on nodes",
	}

	runCmd.AddCommand(&cobra.Command{
		Use:   "sim [duration]",
		Short: "Advance virtual time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTopology(); err != nil {
				return err
			}
			d := time.Second
			if len(args) > 0 {
				var err error
				if d, err = time.ParseDuration(args[0]); err != nil {
					return err
				}
			}
			err := currentTopology.Run(d)
			fmt.Fprintf(out, "Simulation time: %v\n", currentTopology.sched.Now())
			return reportRun(err)
		},
	})

	runCmd.AddCommand(&cobra.Command{
		Use:       "trace [on|off]",
		Short:     "Dump every received frame",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTopology(); err != nil {
				return err
			}
			currentTopology.trace = args[0] == "on"
			return nil
		},
	})

	runNodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Run commands on a specific node",
	}

	var label uint32
	var priority int
	sendCmd := &cobra.Command{
		Use:   "send [node-name] [destination] [payload]",
		Short: "Send an IP packet; destination is an address or node:interface",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := lookupNode(args[0])
			if err != nil {
				return err
			}
			dst, err := resolve_address(currentTopology, args[1])
			if err != nil {
				return err
			}
			payload := "hello"
			if len(args) > 2 {
				payload = args[2]
			}
			currentTopology.sched.After(0, func() {
				currentTopology.report(node.fwd.SendIP(dst, []byte(payload), label, priority))
			})
			return reportRun(currentTopology.Run(0))
		},
	}
	sendCmd.Flags().Uint32Var(&label, "label", 0, "push this MPLS label")
	sendCmd.Flags().IntVar(&priority, "priority", 0, "packet priority (0-7)")
	runNodeCmd.AddCommand(sendCmd)

	runNodeCmd.AddCommand(&cobra.Command{
		Use:   "resolve-arp [node-name] [ip-address]",
		Short: "Resolve ARP for IP address on specified node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := lookupNode(args[0])
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(args[1])
			if err != nil {
				return err
			}
			intf := node_get_matching_subnet_interface(node, addr)
			if intf == nil {
				return errors.Errorf("%s is not on a subnet of node %s", addr, node.name)
			}
			hw, outcome, err := node.arp.Resolve(arp.Request{
				Address:   addr,
				Interface: intf.index,
				Protocol:  arp.ProtocolIP,
			})
			if err != nil {
				return err
			}
			if outcome == arp.Resolved {
				fmt.Fprintf(out, "%s is at %s\n", addr, hw)
			} else {
				fmt.Fprintf(out, "%s: %s\n", addr, outcome)
			}
			return reportRun(currentTopology.Run(0))
		},
	})

	runNodeCmd.AddCommand(&cobra.Command{
		Use:   "check-address [node-name] [interface] [ip-address]",
		Short: "Probe whether an address is already in use",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			intf, err := lookupInterface(args[0], args[1])
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(args[2])
			if err != nil {
				return err
			}
			if err := intf.att_node.checker.Check(intf, addr); err != nil {
				return err
			}
			return reportRun(currentTopology.Run(0))
		},
	})

	runNodeCmd.AddCommand(&cobra.Command{
		Use:       "fault [node-name] [interface] [begin|end]",
		Short:     "Take an interface down or bring it back up",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{"begin", "end"},
		RunE: func(cmd *cobra.Command, args []string) error {
			intf, err := lookupInterface(args[0], args[1])
			if err != nil {
				return err
			}
			switch args[2] {
			case "begin", "end":
			default:
				return errors.Errorf("fault state must be begin or end, not %q", args[2])
			}
			if err := interface_fault(intf, args[2] == "begin"); err != nil {
				return err
			}
			return reportRun(currentTopology.Run(0))
		},
	})

	runCmd.AddCommand(runNodeCmd)
	return runCmd
}

func startInteractiveShell() {
	username := os.Getenv("USER")
	if username == "" {
		username = "user"
	}

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	historyFile := os.Getenv("HOME") + "/.arp-sim_history"
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintf(out, "Welcome to the ARP Simulator CLI\n")
	fmt.Fprintf(out, "Type 'help' for available commands or 'exit' to quit.\n\n")

	for {
		prompt := fmt.Sprintf("%s@arp-sim> ", username)
		input, err := line.Prompt(prompt)

		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Fprintln(out, "\nUse 'exit' to quit")
				continue
			}
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if input == "exit" || input == "quit" {
			fmt.Fprintln(out, "Goodbye!")
			break
		}

		executeCommand(input)
	}

	if f, err := os.Create(historyFile); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

// executeCommand parses one shell line against a fresh command tree, so
// flag values never leak from one line to the next
func executeCommand(input string) {
	args := strings.Fields(input)
	if len(args) == 0 {
		return
	}

	cmd := &cobra.Command{SilenceUsage: true, SilenceErrors: true}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newLoadCommand())
	cmd.AddCommand(newRunCommand())

	helpCmd := &cobra.Command{
		Use:   "help",
		Short: "Help about any command",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(out, "Available commands:")
			fmt.Fprintln(out, "  load topology [file]                               - Load topology from YAML file (default: topologies/triangle.yaml)")
			fmt.Fprintln(out, "  show topology                                      - Display loaded network topology")
			fmt.Fprintln(out, "  show node arp <node-name>                          - Show the ARP table of a node")
			fmt.Fprintln(out, "  show node pending <node-name>                      - Show outstanding ARP requests of a node")
			fmt.Fprintln(out, "  show node routes <node-name>                       - Show the routing table of a node")
			fmt.Fprintln(out, "  show stats                                         - Show ARP and forwarding statistics")
			fmt.Fprintln(out, "  run node send <node-name> <dst> [payload]          - Send an IP packet (--label, --priority)")
			fmt.Fprintln(out, "  run node resolve-arp <node-name> <ip-addr>         - Resolve ARP for IP address on specified node")
			fmt.Fprintln(out, "  run node check-address <node-name> <intf> <ip>     - Probe whether an address is in use")
			fmt.Fprintln(out, "  run node fault <node-name> <intf> begin|end        - Take an interface down or up")
			fmt.Fprintln(out, "  run sim [duration]                                 - Advance virtual time (default 1s)")
			fmt.Fprintln(out, "  run trace on|off                                   - Dump every received frame")
			fmt.Fprintln(out, "  help                                               - Show this help message")
			fmt.Fprintln(out, "  exit                                               - Exit the shell")
		},
	}
	cmd.AddCommand(helpCmd)

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
}

func main() {
	setupSignalHandler()

	if err := newRootCommand().Execute(); err != nil {
		cleanup()
		os.Exit(1)
	}

	cleanup()
}

// graceful shutdown on SIGINT/SIGTERM
func setupSignalHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(out, "\nReceived interrupt signal. Cleaning up...")
		cleanup()
		os.Exit(0)
	}()
}

// cleanup operations before exit
func cleanup() {
	if currentTopology != nil {
		cleanup_graph_resources(currentTopology)
	}
}
