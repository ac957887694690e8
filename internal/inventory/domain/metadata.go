package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MetadataVersion is the current schema version written for every metadata kind.
const MetadataVersion = 1

// envelope is the stored and wire form of all metadata:
// {"kind": "...", "version": 1, "data": {...}}.
type envelope struct {
	Kind    string          `json:"kind"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(src interface{}) (*envelope, error) {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil, fmt.Errorf("metadata: unsupported source type %T", src)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if env.Version != MetadataVersion {
		return nil, fmt.Errorf("metadata: unsupported version %d for kind %q", env.Version, env.Kind)
	}
	return &env, nil
}

func encodeEnvelope(kind string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Version: MetadataVersion, Data: payload})
}

// MovementDetails is one variant of movement metadata. Each variant belongs
// to exactly one movement type.
type MovementDetails interface {
	MovementType() MovementType
}

// ReceiptDetails describes goods received from a supplier.
type ReceiptDetails struct {
	PurchaseOrder string `json:"purchase_order,omitempty"`
	PackingSlip   string `json:"packing_slip,omitempty"`
}

// IssueDetails links stock issued to the clinical event that consumed it.
type IssueDetails struct {
	PatientID   string `json:"patient_id,omitempty"`
	EncounterID string `json:"encounter_id,omitempty"`
	OrderedBy   string `json:"ordered_by,omitempty"`
}

// TransferDetails describes stock moved between locations.
type TransferDetails struct {
	TransferOrder string `json:"transfer_order,omitempty"`
	Carrier       string `json:"carrier,omitempty"`
}

// AdjustmentDetails records a cycle-count correction.
type AdjustmentDetails struct {
	CountSession string `json:"count_session,omitempty"`
	VarianceCode string `json:"variance_code,omitempty"`
}

// ReturnDetails records stock returned to inventory.
type ReturnDetails struct {
	RMANumber string `json:"rma_number,omitempty"`
}

// WasteDetails records disposal, including the witness required for
// controlled substances.
type WasteDetails struct {
	WitnessUserID string `json:"witness_user_id,omitempty"`
	WasteMethod   string `json:"waste_method,omitempty"`
}

func (ReceiptDetails) MovementType() MovementType    { return MovementReceipt }
func (IssueDetails) MovementType() MovementType      { return MovementIssue }
func (TransferDetails) MovementType() MovementType   { return MovementTransfer }
func (AdjustmentDetails) MovementType() MovementType { return MovementAdjustment }
func (ReturnDetails) MovementType() MovementType     { return MovementReturn }
func (WasteDetails) MovementType() MovementType      { return MovementWaste }

// MovementMetadata is the typed metadata attached to a movement. The zero
// value carries nothing and is stored as NULL.
type MovementMetadata struct {
	Details MovementDetails
}

// IsZero reports whether no details are attached.
func (m MovementMetadata) IsZero() bool {
	return m.Details == nil
}

// Matches reports whether the details may ride on a movement of type t.
func (m MovementMetadata) Matches(t MovementType) bool {
	return m.Details == nil || m.Details.MovementType() == t
}

// MarshalJSON writes the versioned envelope, or null.
func (m MovementMetadata) MarshalJSON() ([]byte, error) {
	if m.Details == nil {
		return []byte("null"), nil
	}
	return encodeEnvelope(string(m.Details.MovementType()), m.Details)
}

// UnmarshalJSON reads the versioned envelope.
func (m *MovementMetadata) UnmarshalJSON(b []byte) error {
	return m.Scan(b)
}

// Value implements driver.Valuer.
func (m MovementMetadata) Value() (driver.Value, error) {
	if m.Details == nil {
		return nil, nil
	}
	return valueOf(m.MarshalJSON())
}

// valueOf hands JSON to lib/pq as text; []byte would be sent as bytea.
func valueOf(b []byte, err error) (driver.Value, error) {
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *MovementMetadata) Scan(src interface{}) error {
	env, err := decodeEnvelope(src)
	if err != nil {
		return err
	}
	if env == nil {
		m.Details = nil
		return nil
	}

	var details MovementDetails
	switch MovementType(env.Kind) {
	case MovementReceipt:
		details, err = decodeDetails[ReceiptDetails](env.Data)
	case MovementIssue:
		details, err = decodeDetails[IssueDetails](env.Data)
	case MovementTransfer:
		details, err = decodeDetails[TransferDetails](env.Data)
	case MovementAdjustment:
		details, err = decodeDetails[AdjustmentDetails](env.Data)
	case MovementReturn:
		details, err = decodeDetails[ReturnDetails](env.Data)
	case MovementWaste:
		details, err = decodeDetails[WasteDetails](env.Data)
	default:
		return fmt.Errorf("metadata: unknown movement metadata kind %q", env.Kind)
	}
	if err != nil {
		return err
	}
	m.Details = details
	return nil
}

func decodeDetails[T MovementDetails](data json.RawMessage) (MovementDetails, error) {
	var v T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
	}
	return v, nil
}

const (
	kindLot  = "lot"
	kindItem = "item"
)

// LotMetadata is the typed metadata of a lot.
type LotMetadata struct {
	StorageCondition string `json:"storage_condition,omitempty"`
	Manufacturer     string `json:"manufacturer,omitempty"`
	NDCCode          string `json:"ndc_code,omitempty"`
}

// Value implements driver.Valuer.
func (m LotMetadata) Value() (driver.Value, error) {
	return valueOf(encodeEnvelope(kindLot, m))
}

// Scan implements sql.Scanner.
func (m *LotMetadata) Scan(src interface{}) error {
	return scanSimple(src, kindLot, m)
}

// ItemMetadata is the typed metadata of a catalog item.
type ItemMetadata struct {
	Manufacturer     string `json:"manufacturer,omitempty"`
	HCPCSCode        string `json:"hcpcs_code,omitempty"`
	StorageCondition string `json:"storage_condition,omitempty"`
}

// Value implements driver.Valuer.
func (m ItemMetadata) Value() (driver.Value, error) {
	return valueOf(encodeEnvelope(kindItem, m))
}

// Scan implements sql.Scanner.
func (m *ItemMetadata) Scan(src interface{}) error {
	return scanSimple(src, kindItem, m)
}

func scanSimple(src interface{}, kind string, dest interface{}) error {
	env, err := decodeEnvelope(src)
	if err != nil || env == nil {
		return err
	}
	if env.Kind != kind {
		return fmt.Errorf("metadata: expected kind %q, got %q", kind, env.Kind)
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, dest)
}
