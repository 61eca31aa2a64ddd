package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/output"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	output.Version = version
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds state shared by every command of one invocation.
type cli struct {
	v          *viper.Viper
	configFile string
	verbose    bool
	silent     bool
}

// flagKeys maps command-line flags to configuration keys. Flags are bound
// only for the command that is actually executed.
var flagKeys = map[string]string{
	"log-level":      "logger.level",
	"log-format":     "logger.format",
	"output":         "output.format",
	"no-color":       "output.no_color",
	"metrics-file":   "output.metrics_file",
	"deadline":       "deadline",
	"ports":          "scan.ports",
	"timeout":        "scan.timeout",
	"workers":        "scan.workers",
	"mode":           "subdomains.mode",
	"wordlist":       "subdomains.wordlist",
	"concurrency":    "subdomains.concurrency",
	"probe-timeout":  "subdomains.timeout",
	"shodan-key":     "osint.shodan_api_key",
	"virustotal-key": "osint.virustotal_api_key",
	"axfr":           "osint.zone_transfer",
	"passive-dns":    "osint.passive_dns",
}

func (c *cli) bindFlags(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = c.v.BindPFlag(key, f)
	})
	return err
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "aegis",
		Short:         "Reconnaissance engine",
		Long:          "aegis - subdomain probing, TCP port scanning with service fingerprinting, and open-source intelligence gathering.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.bindFlags(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "Config file (YAML)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console, json)")
	pf.String("output", "table", "Output format (table, json, yaml)")
	pf.Bool("no-color", false, "Disable terminal colors")
	pf.String("metrics-file", "", "Write run metrics in Prometheus text format to this file")
	pf.Duration("deadline", 0, "Abort the run after this long (0 disables)")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Verbose per-component progress")
	pf.BoolVar(&c.silent, "silent", false, "Results only, no progress")

	rootCmd.AddCommand(
		newReconCmd(c),
		newScanCmd(c),
		newSubdomainsCmd(c),
		newOSINTCmd(c),
		newModulesCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "aegis %s\n", version)
			},
		},
	)

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("aegis {{.Version}}\n")
	return rootCmd
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("ports", "common", `Ports to scan: list and ranges ("22,80,8000-8100"), "common" or "top100"`)
	cmd.Flags().Duration("timeout", time.Second, "Per-connection timeout")
	cmd.Flags().Int("workers", 50, "Max concurrent connections")
}

func addSubdomainFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", string(engine.ModeReachability), "Probe mode (reachability, dns)")
	cmd.Flags().String("wordlist", "", "Subdomain label file (default: built-in list)")
	cmd.Flags().Int("concurrency", 50, "Max concurrent label checks")
	cmd.Flags().Duration("probe-timeout", 5*time.Second, "Per-request timeout in reachability mode")
}

func addOSINTFlags(cmd *cobra.Command) {
	cmd.Flags().String("shodan-key", "", "Shodan API key (or SHODAN_API_KEY)")
	cmd.Flags().String("virustotal-key", "", "VirusTotal API key (or VT_API_KEY)")
	cmd.Flags().Bool("axfr", false, "Test nameservers for open zone transfers")
	cmd.Flags().Bool("passive-dns", false, "Query HackerTarget and OTX passive DNS")
}

func newReconCmd(c *cli) *cobra.Command {
	var sel engine.Selection
	var all bool

	cmd := &cobra.Command{
		Use:   "recon <target>",
		Short: "Run the selected components against a target (all by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all || sel == (engine.Selection{}) {
				sel = engine.All()
			}
			return c.run(cmd, args[0], sel)
		},
	}
	cmd.Flags().BoolVarP(&sel.Subdomains, "subdomains", "s", false, "Probe subdomains")
	cmd.Flags().BoolVarP(&sel.Ports, "port-scan", "p", false, "Scan ports")
	cmd.Flags().BoolVarP(&sel.OSINT, "osint", "o", false, "Gather OSINT")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Run every component")
	addScanFlags(cmd)
	addSubdomainFlags(cmd)
	addOSINTFlags(cmd)
	return cmd
}

func newScanCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "TCP connect scan with banner grabbing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args[0], engine.Selection{Ports: true})
		},
	}
	addScanFlags(cmd)
	return cmd
}

func newSubdomainsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subdomains <target>",
		Short: "Probe candidate subdomain labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args[0], engine.Selection{Subdomains: true})
		},
	}
	addSubdomainFlags(cmd)
	return cmd
}

func newOSINTCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "osint <target>",
		Short: "Gather registration, DNS, certificate, archive and reputation intelligence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args[0], engine.Selection{OSINT: true})
		},
	}
	addOSINTFlags(cmd)
	return cmd
}

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the available components",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, m := range engine.Modules() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", m.Name, m.Description)
			}
		},
	}
}
