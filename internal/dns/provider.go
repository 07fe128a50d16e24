package dns

import "context"

// RecordType is a DNS record type as reported by the zone API.
type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
)

// RecordSet is one record set returned by the provider for a name.
type RecordSet struct {
	Name          string     // FQDN with trailing dot as returned by the provider
	Type          RecordType // empty if the provider omitted it
	TTL           int64      // 0 when the record set carries no TTL (e.g. alias records)
	Values        []string   // literal RDATA values
	SetIdentifier string     // non-empty for routing-policy variants

	// Native is the provider's own representation of the record set. Deletions
	// send it back unchanged so routing-policy fields survive the round trip.
	Native any
}

// Routed reports whether the record set is one variant of a routing policy.
func (r RecordSet) Routed() bool {
	return r.SetIdentifier != ""
}

// ChangeAction is the mutation applied to a record set.
type ChangeAction string

const (
	ChangeActionDelete ChangeAction = "DELETE"
	ChangeActionUpsert ChangeAction = "UPSERT"
)

// Change is one mutation inside a change batch.
type Change struct {
	Action    ChangeAction
	RecordSet RecordSet
}

// ChangeBatch is the atomic unit submitted to the provider.
type ChangeBatch struct {
	Comment string
	Changes []Change
}

// ChangeStatus is the provider-reported state of a submitted batch. Any value
// other than the declared constants is an unknown status and carries the raw
// provider string. The empty value means the provider omitted the field.
type ChangeStatus string

const (
	ChangeStatusPending ChangeStatus = "PENDING"
	ChangeStatusInsync  ChangeStatus = "INSYNC"
)

// ChangeInfo tracks a submitted batch. ID is empty if the reply omitted it.
type ChangeInfo struct {
	ID     string
	Status ChangeStatus
}

// RecordSetCursor is a position in a zone's record set listing. Identifier
// is only set when the listing stopped between routing-policy variants.
type RecordSetCursor struct {
	Name       string
	Type       RecordType
	Identifier string
}

// RecordSetPage is one page of a record set listing. Next is nil when the
// provider did not send a continuation cursor.
type RecordSetPage struct {
	RecordSets  []RecordSet
	IsTruncated bool
	Next        *RecordSetCursor
}

// ZoneAPI is the zone-management API contract. Implementations must be safe
// for concurrent use.
//
// ChangeRecordSets and GetChange return a nil *ChangeInfo when the reply
// omitted the change info object.
type ZoneAPI interface {
	ListRecordSets(ctx context.Context, zoneID string, start RecordSetCursor) (*RecordSetPage, error)
	ChangeRecordSets(ctx context.Context, zoneID string, batch ChangeBatch) (*ChangeInfo, error)
	GetChange(ctx context.Context, changeID string) (*ChangeInfo, error)
}
