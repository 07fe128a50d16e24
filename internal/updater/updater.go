package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/config"
	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

const (
	// DefaultPollInterval is the pause between change status checks.
	DefaultPollInterval = 500 * time.Millisecond

	maxHostnameWorkers = 8
)

// Outcome is the result of updating one zone.
type Outcome string

const (
	NoChangesNeeded Outcome = "NoChangesNeeded"
	Succeeded       Outcome = "Succeeded"
	Failed          Outcome = "Failed"
	// Planned is reported in dry-run mode when changes were computed but not
	// submitted.
	Planned Outcome = "Planned"
)

// ZoneResult reports how one zone's update ended.
type ZoneResult struct {
	ZoneID   string
	Outcome  Outcome
	Changes  []dns.Change
	ChangeID string
	Err      error
}

// Updater brings configured zones in line with the desired addresses.
type Updater struct {
	API dns.ZoneAPI
	Log logr.Logger

	// DefaultTTL is the global TTL; nil falls back to config.DefaultTTL.
	DefaultTTL *config.TTL
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// PropagationTimeout bounds the wait for INSYNC. Zero waits until the
	// provider reports a terminal status.
	PropagationTimeout time.Duration
	// DryRun computes changes without submitting them.
	DryRun bool
}

// UpdateAll updates every zone concurrently. A failing zone does not cancel
// the others. Results are in zone order.
func (u *Updater) UpdateAll(ctx context.Context, zones []config.ZoneConfig, desired dns.Addresses) []ZoneResult {
	results := make([]ZoneResult, len(zones))

	var g errgroup.Group
	for i, zone := range zones {
		g.Go(func() error {
			results[i] = u.UpdateZone(ctx, zone, desired)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// UpdateZone computes, submits and waits for one zone's change batch.
func (u *Updater) UpdateZone(ctx context.Context, zone config.ZoneConfig, desired dns.Addresses) ZoneResult {
	log := u.Log.WithValues("zone", zone.ZoneID)
	result := ZoneResult{ZoneID: zone.ZoneID}
	fail := func(err error) ZoneResult {
		log.Error(err, "zone update failed")
		result.Outcome = Failed
		result.Err = fmt.Errorf("zone %s: %w", zone.ZoneID, err)
		return result
	}

	changes, err := u.Aggregate(ctx, zone, desired)
	if err != nil {
		return fail(err)
	}
	result.Changes = changes

	if len(changes) == 0 {
		log.Info("zone is up to date")
		result.Outcome = NoChangesNeeded
		return result
	}
	if u.DryRun {
		log.Info("planned changes, not submitting", "count", len(changes), "plan", FormatChanges(changes))
		result.Outcome = Planned
		return result
	}

	log.Info("submitting changes", "count", len(changes))
	log.V(1).Info("change plan", "plan", FormatChanges(changes))
	info, err := u.Submit(ctx, zone.ZoneID, zone.HostnameList(), changes)
	if err != nil {
		return fail(err)
	}
	result.ChangeID = info.ID
	log.Info("change submitted", "changeID", info.ID, "status", info.Status)

	if err := u.WaitForPropagation(ctx, *info); err != nil {
		return fail(err)
	}
	log.Info("zone updated", "changeID", info.ID)
	result.Outcome = Succeeded
	return result
}

// Aggregate lists and diffs every hostname of zone concurrently and merges
// the changes. The first failure cancels the remaining hostnames and no
// changes are returned.
func (u *Updater) Aggregate(ctx context.Context, zone config.ZoneConfig, desired dns.Addresses) ([]dns.Change, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxHostnameWorkers)

	perHostname := make([][]dns.Change, len(zone.Hostnames))
	for i, h := range zone.Hostnames {
		ttl := int64(config.EffectiveTTL(h, zone, u.DefaultTTL))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			existing, err := ListHostnameRecordSets(ctx, u.API, zone.ZoneID, h.Hostname)
			if err != nil {
				return err
			}
			changes, err := DiffHostname(h.Hostname, existing, desired, ttl)
			if err != nil {
				return fmt.Errorf("hostname %s: %w", h.Hostname, err)
			}
			u.Log.V(1).Info("computed hostname changes", "zone", zone.ZoneID, "hostname", h.Hostname,
				"existing", len(existing), "count", len(changes))
			perHostname[i] = changes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []dns.Change
	for _, changes := range perHostname {
		all = append(all, changes...)
	}
	return all, nil
}

// Submit sends changes as one atomic batch. Callers skip empty change sets.
func (u *Updater) Submit(ctx context.Context, zoneID string, hostnames []string, changes []dns.Change) (*dns.ChangeInfo, error) {
	batch := dns.ChangeBatch{Comment: BatchComment(hostnames), Changes: changes}

	info, err := u.API.ChangeRecordSets(ctx, zoneID, batch)
	if err != nil {
		return nil, fmt.Errorf("submitting change batch: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("submitting change batch: %w", dns.MissingReplyField("ChangeInfo"))
	}
	if info.ID == "" {
		return nil, fmt.Errorf("submitting change batch: %w", dns.MissingReplyField("ChangeInfo.Id"))
	}
	return info, nil
}

// WaitForPropagation polls the change until it is INSYNC. The status in info
// is checked first, then the change is polled every PollInterval.
func (u *Updater) WaitForPropagation(ctx context.Context, info dns.ChangeInfo) error {
	done, err := propagated(info)
	if err != nil {
		return fmt.Errorf("change %s: %w", info.ID, err)
	}
	if done {
		return nil
	}

	if u.PropagationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.PropagationTimeout)
		defer cancel()
	}

	interval := u.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	err = wait.PollUntilContextCancel(ctx, interval, false, func(ctx context.Context) (bool, error) {
		current, err := u.API.GetChange(ctx, info.ID)
		if err != nil {
			return false, err
		}
		if current == nil {
			return false, dns.MissingReplyField("ChangeInfo")
		}
		u.Log.V(1).Info("polled change status", "changeID", info.ID, "status", current.Status)
		return propagated(*current)
	})
	if err != nil {
		if wait.Interrupted(err) {
			return fmt.Errorf("change %s did not propagate: %w", info.ID, err)
		}
		return fmt.Errorf("change %s: %w", info.ID, err)
	}
	return nil
}

func propagated(info dns.ChangeInfo) (bool, error) {
	switch info.Status {
	case dns.ChangeStatusInsync:
		return true, nil
	case dns.ChangeStatusPending:
		return false, nil
	case "":
		return false, dns.MissingReplyField("Status")
	default:
		return false, dns.UnexpectedStatus(info.Status)
	}
}

// Err aggregates the errors of failed zones, or returns nil.
func Err(results []ZoneResult) error {
	var errs []error
	for _, r := range results {
		if r.Outcome == Failed {
			errs = append(errs, r.Err)
		}
	}
	return utilerrors.NewAggregate(errs)
}
