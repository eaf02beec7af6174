package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CustodyRecord is the payload carried by a Block. It identifies a tracked
// unit and one custody event for it. A record is never edited in place: a
// location change is expressed as a new record (new block) that carries the
// original fields forward plus the LastUpdated* attribution fields.
type CustodyRecord struct {
	SubjectID      string    `json:"subjectId"`
	Classification string    `json:"classification"`
	Origin         string    `json:"origin"`
	Location       string    `json:"location"`
	TemperatureC   float64   `json:"temperatureC"`
	CreatedAt      time.Time `json:"createdAt"`

	// Signature is a detached signature over SigningString(), produced by the
	// node's signer at record creation and verified before admission.
	Signature string `json:"signature"`

	// Update attribution, present only on location-update records.
	LastUpdatedBy   string     `json:"lastUpdatedBy,omitempty"`
	LastUpdatedRole string     `json:"lastUpdatedRole,omitempty"`
	LastUpdatedAt   *time.Time `json:"lastUpdatedAt,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// SigningString returns the canonical byte string the detached signature
// covers: the concatenation of every field except the signature itself, in
// declaration order, separated by '|'. The update attribution fields are
// included only when set so that creation records and their signatures are
// stable regardless of later schema additions.
func (r CustodyRecord) SigningString() string {
	var sb strings.Builder
	sb.WriteString(r.SubjectID)
	sb.WriteByte('|')
	sb.WriteString(r.Classification)
	sb.WriteByte('|')
	sb.WriteString(r.Origin)
	sb.WriteByte('|')
	sb.WriteString(r.Location)
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatFloat(r.TemperatureC, 'f', -1, 64))
	sb.WriteByte('|')
	sb.WriteString(r.CreatedAt.UTC().Format(time.RFC3339))
	if r.LastUpdatedBy != "" {
		sb.WriteByte('|')
		sb.WriteString(r.LastUpdatedBy)
		sb.WriteByte('|')
		sb.WriteString(r.LastUpdatedRole)
		if r.LastUpdatedAt != nil {
			sb.WriteByte('|')
			sb.WriteString(r.LastUpdatedAt.UTC().Format(time.RFC3339))
		}
		if r.Notes != "" {
			sb.WriteByte('|')
			sb.WriteString(r.Notes)
		}
	}
	return sb.String()
}

// Validate checks the record's required fields and value ranges. It returns a
// single error listing every problem so callers can surface field-level detail.
func (r CustodyRecord) Validate() error {
	var errs []string

	if strings.TrimSpace(r.SubjectID) == "" {
		errs = append(errs, "subjectId must not be empty")
	}
	if strings.TrimSpace(r.Classification) == "" {
		errs = append(errs, "classification must not be empty")
	}
	if strings.TrimSpace(r.Origin) == "" {
		errs = append(errs, "origin must not be empty")
	}
	if strings.TrimSpace(r.Location) == "" {
		errs = append(errs, "location must not be empty")
	}
	if r.TemperatureC < -90 || r.TemperatureC > 60 {
		errs = append(errs, fmt.Sprintf("temperatureC %.2f outside plausible range [-90, 60]", r.TemperatureC))
	}
	if r.CreatedAt.IsZero() {
		errs = append(errs, "createdAt must be set")
	}
	if r.Signature == "" {
		errs = append(errs, "signature must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, "; "))
	}
	return nil
}
