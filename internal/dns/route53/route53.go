package route53

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	r53 "github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

// DefaultRegion is used when the environment does not name one. Route 53 is a
// global service, so any region reaches it.
const DefaultRegion = "us-east-1"

// API is the subset of *route53.Client used by Provider.
type API interface {
	ListResourceRecordSets(ctx context.Context, params *r53.ListResourceRecordSetsInput, optFns ...func(*r53.Options)) (*r53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *r53.ChangeResourceRecordSetsInput, optFns ...func(*r53.Options)) (*r53.ChangeResourceRecordSetsOutput, error)
	GetChange(ctx context.Context, params *r53.GetChangeInput, optFns ...func(*r53.Options)) (*r53.GetChangeOutput, error)
}

// Provider implements dns.ZoneAPI for Amazon Route 53.
type Provider struct {
	client      API
	callTimeout time.Duration
	log         logr.Logger
}

var _ dns.ZoneAPI = (*Provider)(nil)

// New creates a Route 53 provider using credentials and region from the
// standard AWS environment (env vars, shared config, instance roles).
// callTimeout bounds each API call; zero disables the bound.
func New(ctx context.Context, log logr.Logger, callTimeout time.Duration) (*Provider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("route53: load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = DefaultRegion
	}
	return NewWithClient(r53.NewFromConfig(awsCfg), log, callTimeout), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, log logr.Logger, callTimeout time.Duration) *Provider {
	return &Provider{client: client, callTimeout: callTimeout, log: log}
}

func (p *Provider) ListRecordSets(ctx context.Context, zoneID string, start dns.RecordSetCursor) (*dns.RecordSetPage, error) {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	in := &r53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(start.Name),
		StartRecordType: types.RRType(start.Type),
	}
	if start.Identifier != "" {
		in.StartRecordIdentifier = aws.String(start.Identifier)
	}

	out, err := p.client.ListResourceRecordSets(ctx, in)
	if err != nil {
		return nil, p.callError("ListResourceRecordSets", zoneID, err)
	}

	page := &dns.RecordSetPage{
		RecordSets:  make([]dns.RecordSet, 0, len(out.ResourceRecordSets)),
		IsTruncated: out.IsTruncated,
	}
	for _, rs := range out.ResourceRecordSets {
		page.RecordSets = append(page.RecordSets, fromRecordSet(rs))
	}
	if out.NextRecordName != nil {
		page.Next = &dns.RecordSetCursor{
			Name:       aws.ToString(out.NextRecordName),
			Type:       dns.RecordType(out.NextRecordType),
			Identifier: aws.ToString(out.NextRecordIdentifier),
		}
	}
	return page, nil
}

func (p *Provider) ChangeRecordSets(ctx context.Context, zoneID string, batch dns.ChangeBatch) (*dns.ChangeInfo, error) {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	changes := make([]types.Change, 0, len(batch.Changes))
	for _, c := range batch.Changes {
		changes = append(changes, toChange(c))
	}

	out, err := p.client.ChangeResourceRecordSets(ctx, &r53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String(batch.Comment),
			Changes: changes,
		},
	})
	if err != nil {
		return nil, p.callError("ChangeResourceRecordSets", zoneID, err)
	}
	return fromChangeInfo(out.ChangeInfo), nil
}

func (p *Provider) GetChange(ctx context.Context, changeID string) (*dns.ChangeInfo, error) {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	out, err := p.client.GetChange(ctx, &r53.GetChangeInput{Id: aws.String(changeID)})
	if err != nil {
		return nil, p.callError("GetChange", changeID, err)
	}
	return fromChangeInfo(out.ChangeInfo), nil
}

func (p *Provider) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.callTimeout)
}

// callError wraps a failed call as ErrTransport. The provider's error code
// and message stay in the chain.
func (p *Provider) callError(op, target string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		p.log.V(1).Info("route53 API error", "op", op, "target", target,
			"code", apiErr.ErrorCode(), "fault", apiErr.ErrorFault().String())
	}
	return fmt.Errorf("%w: route53 %s %s: %w", dns.ErrTransport, op, target, err)
}

func fromRecordSet(rs types.ResourceRecordSet) dns.RecordSet {
	values := make([]string, 0, len(rs.ResourceRecords))
	for _, rr := range rs.ResourceRecords {
		values = append(values, aws.ToString(rr.Value))
	}
	return dns.RecordSet{
		Name:          aws.ToString(rs.Name),
		Type:          dns.RecordType(rs.Type),
		TTL:           aws.ToInt64(rs.TTL),
		Values:        values,
		SetIdentifier: aws.ToString(rs.SetIdentifier),
		Native:        rs,
	}
}

// toChange maps a change to the SDK type. Deletions of record sets that came
// from a listing reuse the listed record set as is, since Route 53 only
// deletes exact matches.
func toChange(c dns.Change) types.Change {
	if native, ok := c.RecordSet.Native.(types.ResourceRecordSet); ok && c.Action == dns.ChangeActionDelete {
		return types.Change{Action: types.ChangeActionDelete, ResourceRecordSet: &native}
	}

	rs := c.RecordSet
	records := make([]types.ResourceRecord, 0, len(rs.Values))
	for _, v := range rs.Values {
		records = append(records, types.ResourceRecord{Value: aws.String(v)})
	}
	out := &types.ResourceRecordSet{
		Name:            aws.String(dns.FQDN(rs.Name)),
		Type:            types.RRType(rs.Type),
		ResourceRecords: records,
	}
	if rs.TTL > 0 {
		out.TTL = aws.Int64(rs.TTL)
	}
	if rs.SetIdentifier != "" {
		out.SetIdentifier = aws.String(rs.SetIdentifier)
	}
	return types.Change{Action: types.ChangeAction(c.Action), ResourceRecordSet: out}
}

func fromChangeInfo(ci *types.ChangeInfo) *dns.ChangeInfo {
	if ci == nil {
		return nil
	}
	return &dns.ChangeInfo{
		ID:     aws.ToString(ci.Id),
		Status: dns.ChangeStatus(ci.Status),
	}
}
