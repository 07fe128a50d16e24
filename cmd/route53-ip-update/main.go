package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/config"
	"github.com/yuriy-kovalchuk/route53-ip-update/internal/discovery"
	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns/route53"
	"github.com/yuriy-kovalchuk/route53-ip-update/internal/updater"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&options{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type options struct {
	configFile string
	zone       string
	dryRun     bool
	logFormat  string
	verbosity  int

	addressType           config.AddressType
	allowNonroutable      bool
	queryInterfaces       bool
	queryIPService        bool
	ignoreInterfaces      []string
	ipService             string
	timeout               config.Duration
	apiTimeout            config.Duration
	propagationTimeout    config.Duration
	ttl                   config.TTL
	allowPartialDiscovery bool
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "route53-ip-update [flags] [hostnames...]",
		Short:         "Point Route 53 hostnames at this host's current IP addresses",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.VarP(&opts.addressType, "address-type", "a", "address families to update: both, ipv4 or ipv6")
	f.BoolVarP(&opts.allowNonroutable, "allow-nonroutable", "n", false, "allow private, link-local and other non-global addresses")
	f.StringVarP(&opts.configFile, "config-file", "c", "", "config file to read (.yaml, .yml, .json or .toml), defaults to $"+config.EnvConfigPath)
	f.BoolVarP(&opts.queryInterfaces, "query-interfaces", "q", false, "read addresses from local network interfaces")
	f.BoolVar(&opts.queryIPService, "query-ip-service", true, "ask the IP service for the public addresses")
	f.StringArrayVarP(&opts.ignoreInterfaces, "ignore-interfaces", "I", nil, "interface to ignore while querying (repeatable)")
	f.StringVarP(&opts.ipService, "ip-service", "s", config.DefaultIPService, "service answering with the caller's IP address")
	f.VarP(&opts.timeout, "timeout", "t", "time allowed for the IP service to respond (default 10s)")
	f.VarP(&opts.ttl, "ttl", "T", "time-to-live for updated records (default 300)")
	f.StringVarP(&opts.zone, "route53-zone", "r", "", "hosted zone id the positional hostnames belong to")
	f.Var(&opts.apiTimeout, "api-timeout", "time allowed for each Route 53 API call (default 30s)")
	f.Var(&opts.propagationTimeout, "propagation-timeout", "time allowed for changes to reach INSYNC, 0 waits indefinitely")
	f.BoolVar(&opts.allowPartialDiscovery, "allow-partial-discovery", false, "continue when some discovery sources fail")
	f.BoolVar(&opts.dryRun, "dry-run", false, "log the planned changes without submitting them")
	f.StringVar(&opts.logFormat, "log-format", "console", "log encoding: console or json")
	f.CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity (repeatable)")

	return cmd
}

// overlay returns the settings given explicitly on the command line.
func (o *options) overlay(cmd *cobra.Command) *config.Config {
	changed := cmd.Flags().Changed
	c := &config.Config{}
	if changed("address-type") {
		c.AddressType = &o.addressType
	}
	if changed("allow-nonroutable") {
		c.AllowNonroutable = &o.allowNonroutable
	}
	if changed("query-interfaces") {
		c.QueryInterfaces = &o.queryInterfaces
	}
	if changed("query-ip-service") {
		c.QueryIPService = &o.queryIPService
	}
	if changed("ignore-interfaces") {
		c.IgnoreInterfaces = o.ignoreInterfaces
	}
	if changed("ip-service") {
		c.IPService = &o.ipService
	}
	if changed("timeout") {
		c.Timeout = &o.timeout
	}
	if changed("api-timeout") {
		c.APITimeout = &o.apiTimeout
	}
	if changed("propagation-timeout") {
		c.PropagationTimeout = &o.propagationTimeout
	}
	if changed("ttl") {
		c.TTL = &o.ttl
	}
	if changed("allow-partial-discovery") {
		c.AllowPartialDiscovery = &o.allowPartialDiscovery
	}
	return c
}

// buildConfig loads the config file and applies the command line on top.
func buildConfig(cmd *cobra.Command, opts *options, hostnames []string) (*config.Config, error) {
	if len(hostnames) > 0 && opts.zone == "" {
		return nil, errors.New("hostnames given on the command line require --route53-zone")
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Merge(opts.overlay(cmd)); err != nil {
		return nil, err
	}
	if opts.zone != "" {
		cfg.AddHostnames(opts.zone, hostnames...)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, opts *options, hostnames []string) error {
	ctx := cmd.Context()

	log, flush, err := newLogger(opts.logFormat, opts.verbosity)
	if err != nil {
		return err
	}
	defer flush()

	cfg, err := buildConfig(cmd, opts, hostnames)
	if err != nil {
		return err
	}
	log.Info("starting route53-ip-update", "version", Version, "zones", len(cfg.Zones), "dryRun", opts.dryRun)

	collector, err := newCollector(cfg, log.WithName("discovery"))
	if err != nil {
		return err
	}
	desired, err := collector.Collect(ctx)
	if err != nil {
		return err
	}
	if desired.Empty() {
		log.Info("no usable addresses discovered, existing address records will be removed")
	}

	provider, err := route53.New(ctx, log.WithName("route53"), cfg.CallTimeout())
	if err != nil {
		return err
	}

	u := &updater.Updater{
		API:                provider,
		Log:                log.WithName("updater"),
		DefaultTTL:         cfg.TTL,
		PropagationTimeout: cfg.PropagationDeadline(),
		DryRun:             opts.dryRun,
	}
	results := u.UpdateAll(ctx, cfg.Zones, desired)
	for _, r := range results {
		log.Info("zone result", "zone", r.ZoneID, "outcome", string(r.Outcome), "count", len(r.Changes), "changeID", r.ChangeID)
	}
	return updater.Err(results)
}

func newCollector(cfg *config.Config, log logr.Logger) (*discovery.Collector, error) {
	family := cfg.Family()
	c := &discovery.Collector{
		Filter: discovery.Filter{
			IPv4:             family.IPv4(),
			IPv6:             family.IPv6(),
			AllowNonroutable: cfg.NonroutableAllowed(),
		},
		QueryInterfaces: cfg.InterfacesEnabled(),
		AllowsInterface: cfg.AllowsInterface,
		AllowPartial:    cfg.PartialDiscoveryAllowed(),
		Log:             log,
	}

	if cfg.IPServiceEnabled() {
		resolver, err := discovery.LoadResolver(discovery.DefaultResolvConf)
		if err != nil {
			return nil, err
		}
		c.Service = &discovery.IPService{
			URL:       cfg.IPServiceURL(),
			Timeout:   cfg.ServiceTimeout(),
			Resolver:  resolver,
			UserAgent: "route53-ip-update/" + Version,
			Log:       log.WithName("ip-service"),
		}
	}
	return c, nil
}
