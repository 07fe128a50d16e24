// Package route53test provides an in-memory Route 53 API for tests. It keeps
// the listing order, truncation and change status behaviour of the real
// service closely enough to drive the provider and updater end to end.
package route53test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	r53 "github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
)

// Fake is a minimal in-memory Route 53. The zero value is not usable; call
// New.
type Fake struct {
	// PageSize is the maximum number of record sets per listing page.
	PageSize int
	// PendingPolls is how many GetChange calls report PENDING before a change
	// turns INSYNC.
	PendingPolls int

	mu      sync.Mutex
	zones   map[string][]types.ResourceRecordSet
	changes map[string]*change
	nextID  int
	calls   []string
	batches []types.ChangeBatch
	errs    map[string]error
}

type change struct {
	polls int
}

// New returns a fake with the given zones created empty.
func New(zoneIDs ...string) *Fake {
	f := &Fake{
		PageSize: 100,
		zones:    map[string][]types.ResourceRecordSet{},
		changes:  map[string]*change{},
		errs:     map[string]error{},
	}
	for _, id := range zoneIDs {
		f.zones[id] = nil
	}
	return f
}

// AddRecordSet stores rs in zoneID, creating the zone if needed.
func (f *Fake) AddRecordSet(zoneID string, rs types.ResourceRecordSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs.Name = aws.String(encodeName(aws.ToString(rs.Name)))
	f.zones[zoneID] = sortRecordSets(append(f.zones[zoneID], rs))
}

// RecordSets returns the zone's record sets in listing order.
func (f *Fake) RecordSets(zoneID string) []types.ResourceRecordSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.zones[zoneID])
}

// Fail makes every later call of op ("ListResourceRecordSets",
// "ChangeResourceRecordSets" or "GetChange") return err.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

// Calls returns the operations called so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Batches returns every accepted change batch.
func (f *Fake) Batches() []types.ChangeBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.batches)
}

func (f *Fake) record(op, target string) error {
	f.calls = append(f.calls, op+" "+target)
	return f.errs[op]
}

func (f *Fake) ListResourceRecordSets(_ context.Context, in *r53.ListResourceRecordSetsInput, _ ...func(*r53.Options)) (*r53.ListResourceRecordSetsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	zoneID := aws.ToString(in.HostedZoneId)
	if err := f.record("ListResourceRecordSets", zoneID); err != nil {
		return nil, err
	}
	all, ok := f.zones[zoneID]
	if !ok {
		return nil, noSuchZone(zoneID)
	}

	start := recordKey{
		labels: labels(aws.ToString(in.StartRecordName)),
		rrType: string(in.StartRecordType),
		id:     aws.ToString(in.StartRecordIdentifier),
	}
	idx, _ := slices.BinarySearchFunc(all, start, func(rs types.ResourceRecordSet, k recordKey) int {
		return keyOf(rs).compare(k)
	})

	end := min(idx+f.PageSize, len(all))
	out := &r53.ListResourceRecordSetsOutput{
		ResourceRecordSets: slices.Clone(all[idx:end]),
		MaxItems:           aws.Int32(int32(f.PageSize)),
	}
	if end < len(all) {
		next := all[end]
		out.IsTruncated = true
		out.NextRecordName = next.Name
		out.NextRecordType = next.Type
		out.NextRecordIdentifier = next.SetIdentifier
	}
	return out, nil
}

func (f *Fake) ChangeResourceRecordSets(_ context.Context, in *r53.ChangeResourceRecordSetsInput, _ ...func(*r53.Options)) (*r53.ChangeResourceRecordSetsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	zoneID := aws.ToString(in.HostedZoneId)
	if err := f.record("ChangeResourceRecordSets", zoneID); err != nil {
		return nil, err
	}
	current, ok := f.zones[zoneID]
	if !ok {
		return nil, noSuchZone(zoneID)
	}
	if in.ChangeBatch == nil || len(in.ChangeBatch.Changes) == 0 {
		return nil, invalidBatch("change batch is empty")
	}

	// Changes apply to a copy so a rejected batch leaves the zone untouched.
	next := slices.Clone(current)
	for _, c := range in.ChangeBatch.Changes {
		var err error
		if next, err = applyChange(next, c); err != nil {
			return nil, err
		}
	}
	if err := checkCNAMEs(next); err != nil {
		return nil, err
	}
	f.zones[zoneID] = sortRecordSets(next)
	f.batches = append(f.batches, *in.ChangeBatch)

	f.nextID++
	id := fmt.Sprintf("/change/C%06d", f.nextID)
	f.changes[id] = &change{}
	return &r53.ChangeResourceRecordSetsOutput{
		ChangeInfo: &types.ChangeInfo{
			Id:          aws.String(id),
			Status:      types.ChangeStatusPending,
			SubmittedAt: aws.Time(time.Now()),
			Comment:     in.ChangeBatch.Comment,
		},
	}, nil
}

func (f *Fake) GetChange(_ context.Context, in *r53.GetChangeInput, _ ...func(*r53.Options)) (*r53.GetChangeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(in.Id)
	if err := f.record("GetChange", id); err != nil {
		return nil, err
	}
	c, ok := f.changes[id]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchChange", Message: "no change with id " + id, Fault: smithy.FaultClient}
	}

	c.polls++
	status := types.ChangeStatusInsync
	if c.polls <= f.PendingPolls {
		status = types.ChangeStatusPending
	}
	return &r53.GetChangeOutput{
		ChangeInfo: &types.ChangeInfo{Id: aws.String(id), Status: status, SubmittedAt: aws.Time(time.Now())},
	}, nil
}

func applyChange(sets []types.ResourceRecordSet, c types.Change) ([]types.ResourceRecordSet, error) {
	if c.ResourceRecordSet == nil {
		return nil, invalidBatch("change is missing its record set")
	}
	rs := *c.ResourceRecordSet
	rs.Name = aws.String(encodeName(aws.ToString(rs.Name)))
	key := keyOf(rs)
	idx := slices.IndexFunc(sets, func(existing types.ResourceRecordSet) bool {
		return keyOf(existing).compare(key) == 0
	})

	switch c.Action {
	case types.ChangeActionDelete:
		if idx < 0 || !sameRecordSet(sets[idx], rs) {
			return nil, invalidBatch(fmt.Sprintf("tried to delete resource record set [name='%s', type='%s'] but it was not found", aws.ToString(rs.Name), rs.Type))
		}
		return slices.Delete(sets, idx, idx+1), nil
	case types.ChangeActionUpsert:
		if idx >= 0 {
			sets[idx] = rs
			return sets, nil
		}
		return append(sets, rs), nil
	case types.ChangeActionCreate:
		if idx >= 0 {
			return nil, invalidBatch(fmt.Sprintf("tried to create resource record set [name='%s', type='%s'] but it already exists", aws.ToString(rs.Name), rs.Type))
		}
		return append(sets, rs), nil
	default:
		return nil, invalidBatch(fmt.Sprintf("unknown action %q", c.Action))
	}
}

func checkCNAMEs(sets []types.ResourceRecordSet) error {
	byName := map[string][]types.RRType{}
	for _, rs := range sets {
		name := strings.ToLower(aws.ToString(rs.Name))
		byName[name] = append(byName[name], rs.Type)
	}
	for name, ts := range byName {
		if slices.Contains(ts, types.RRTypeCname) && len(ts) > 1 {
			return invalidBatch(fmt.Sprintf("RRSet of type CNAME with DNS name %s is not permitted as it conflicts with other records with the same DNS name", name))
		}
	}
	return nil
}

func sameRecordSet(a, b types.ResourceRecordSet) bool {
	if aws.ToInt64(a.TTL) != aws.ToInt64(b.TTL) || len(a.ResourceRecords) != len(b.ResourceRecords) {
		return false
	}
	for i := range a.ResourceRecords {
		if aws.ToString(a.ResourceRecords[i].Value) != aws.ToString(b.ResourceRecords[i].Value) {
			return false
		}
	}
	return true
}

type recordKey struct {
	labels []string
	rrType string
	id     string
}

func keyOf(rs types.ResourceRecordSet) recordKey {
	return recordKey{labels: labels(aws.ToString(rs.Name)), rrType: string(rs.Type), id: aws.ToString(rs.SetIdentifier)}
}

func (k recordKey) compare(o recordKey) int {
	if c := slices.Compare(k.labels, o.labels); c != 0 {
		return c
	}
	if c := strings.Compare(k.rrType, o.rrType); c != 0 {
		return c
	}
	return strings.Compare(k.id, o.id)
}

// labels returns the name's labels from the root down, which is the order
// Route 53 sorts listings in.
func labels(name string) []string {
	name = strings.TrimSuffix(strings.ToLower(encodeName(name)), ".")
	if name == "" {
		return nil
	}
	l := strings.Split(name, ".")
	slices.Reverse(l)
	return l
}

// encodeName returns the name as Route 53 reports it: fully qualified and with
// a leading wildcard label escaped.
func encodeName(name string) string {
	name = strings.TrimSuffix(name, ".") + "."
	if strings.HasPrefix(name, "*.") {
		name = `\052` + name[1:]
	}
	return name
}

func sortRecordSets(sets []types.ResourceRecordSet) []types.ResourceRecordSet {
	slices.SortFunc(sets, func(a, b types.ResourceRecordSet) int {
		return keyOf(a).compare(keyOf(b))
	})
	return sets
}

func noSuchZone(id string) error {
	return &smithy.GenericAPIError{Code: "NoSuchHostedZone", Message: "no hosted zone found with ID: " + id, Fault: smithy.FaultClient}
}

func invalidBatch(msg string) error {
	return &smithy.GenericAPIError{Code: "InvalidChangeBatch", Message: msg, Fault: smithy.FaultClient}
}
