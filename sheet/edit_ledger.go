package sheet

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// EditField names the displayed value an operator edited.
type EditField string

const (
	FieldQuantity EditField = "quantity"
	FieldName     EditField = "name"
	FieldCustomer EditField = "customer"
	FieldContent  EditField = "content"
)

// EditRecord is one manual edit of a displayed value.
type EditRecord struct {
	Field         EditField `json:"field"`
	OriginalValue string    `json:"originalValue"`
	EditedValue   string    `json:"editedValue"`
	Author        string    `json:"author"`
	Timestamp     time.Time `json:"timestamp"`
}

// Validate rejects records with an unknown field or no author.
func (r EditRecord) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Field, validation.Required, validation.In(FieldQuantity, FieldName, FieldCustomer, FieldContent)),
		validation.Field(&r.Author, validation.Required),
	)
}

// LedgerSnapshot is a point-in-time copy of the ledger: key -> field -> record.
type LedgerSnapshot map[ItemKey]map[EditField]EditRecord

// EditLedger records manual edits keyed by item. The last write for a given
// key and field wins, whether it came from this operator or a collaborator.
type EditLedger struct {
	edits LedgerSnapshot
}

// NewEditLedger creates an empty ledger.
func NewEditLedger() *EditLedger {
	return &EditLedger{edits: make(LedgerSnapshot)}
}

// RecordEdit upserts the record for (key, record.Field).
func (l *EditLedger) RecordEdit(key ItemKey, record EditRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	fields, ok := l.edits[key]
	if !ok {
		fields = make(map[EditField]EditRecord)
		l.edits[key] = fields
	}
	if existing, ok := fields[record.Field]; ok {
		// Keep the value the item had before it was first edited.
		record.OriginalValue = existing.OriginalValue
	}
	fields[record.Field] = record
	return nil
}

// Merge applies remote records, keeping whichever record per field is newer.
func (l *EditLedger) Merge(remote LedgerSnapshot) {
	for key, fields := range remote {
		for field, record := range fields {
			local, ok := l.edits[key][field]
			if ok && local.Timestamp.After(record.Timestamp) {
				continue
			}
			if l.edits[key] == nil {
				l.edits[key] = make(map[EditField]EditRecord)
			}
			l.edits[key][field] = record
		}
	}
}

// IsEdited reports whether any field of key was edited.
func (l *EditLedger) IsEdited(key ItemKey) bool {
	return len(l.edits[key]) > 0
}

// GetEdit returns the most recent edit of key across its fields.
func (l *EditLedger) GetEdit(key ItemKey) (EditRecord, bool) {
	var latest EditRecord
	found := false
	for _, record := range l.edits[key] {
		if !found || record.Timestamp.After(latest.Timestamp) {
			latest = record
			found = true
		}
	}
	return latest, found
}

// GetFieldEdit returns the edit of one field of key.
func (l *EditLedger) GetFieldEdit(key ItemKey, field EditField) (EditRecord, bool) {
	record, ok := l.edits[key][field]
	return record, ok
}

// ClearEdit removes every edit of key.
func (l *EditLedger) ClearEdit(key ItemKey) {
	delete(l.edits, key)
}

// Snapshot returns a deep copy of the ledger.
func (l *EditLedger) Snapshot() LedgerSnapshot {
	out := make(LedgerSnapshot, len(l.edits))
	for key, fields := range l.edits {
		copied := make(map[EditField]EditRecord, len(fields))
		for field, record := range fields {
			copied[field] = record
		}
		out[key] = copied
	}
	return out
}
