/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the archive
  domain types from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import "github.com/warp/archive-engine/archive"

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AgreementDTO represents an agreement in API responses.
type AgreementDTO struct {
	AgreementNumber string `json:"agreement_number"`
	Category        string `json:"category"`
	BoxType         string `json:"box_type"`
	Status          string `json:"status"`
	AssignedBoxName string `json:"assigned_box_name,omitempty"`
	AssignedDokID   string `json:"assigned_dok_id,omitempty"`
}

// ActiveBoxDTO represents the open box of a type.
type ActiveBoxDTO struct {
	BoxType         string `json:"box_type"`
	CurrentSequence int64  `json:"current_sequence"`
	CurrentBoxName  string `json:"current_box_name"`
	CurrentDokID    string `json:"current_dok_id"`
	ItemCount       int64  `json:"item_count"`
}

// NextBoxRequest is the body of POST /api/boxes/{type}/next.
type NextBoxRequest struct {
	DokID string `json:"dok_id"`
}

// AssignRequest is the body of POST /api/assignments.
type AssignRequest struct {
	AgreementNumber string `json:"agreement_number"`
	BoxName         string `json:"box_name"`
	DokID           string `json:"dok_id"`
	BoxType         string `json:"box_type"`
}

// RowOutcomeDTO is one line of an upload report.
type RowOutcomeDTO struct {
	Row             int    `json:"row"`
	AgreementNumber string `json:"agreement_number,omitempty"`
	BoxType         string `json:"box_type,omitempty"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
}

// IngestReportDTO summarizes an upload.
type IngestReportDTO struct {
	UploadID   string          `json:"upload_id"`
	Workbook   string          `json:"workbook"`
	Sheet      string          `json:"sheet"`
	HeaderRow  int             `json:"header_row"`
	Attempted  int             `json:"attempted"`
	Inserted   int             `json:"inserted"`
	Duplicates int             `json:"duplicates"`
	Skipped    int             `json:"skipped"`
	Invalid    int             `json:"invalid"`
	Message    string          `json:"message"`
	Rows       []RowOutcomeDTO `json:"rows"`
}

// SuccessResponse acknowledges a write with no body of its own.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is returned for all failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAgreementDTO(a archive.Agreement) AgreementDTO {
	return AgreementDTO{
		AgreementNumber: a.Number,
		Category:        a.Category,
		BoxType:         a.BoxType,
		Status:          string(a.Status),
		AssignedBoxName: a.AssignedBoxName,
		AssignedDokID:   a.AssignedDokID,
	}
}

func toActiveBoxDTO(b archive.ActiveBox) ActiveBoxDTO {
	return ActiveBoxDTO{
		BoxType:         b.BoxType,
		CurrentSequence: b.Sequence,
		CurrentBoxName:  b.Name,
		CurrentDokID:    b.DokID,
		ItemCount:       b.ItemCount,
	}
}

func toIngestReportDTO(r *archive.IngestReport) IngestReportDTO {
	rows := make([]RowOutcomeDTO, len(r.Rows))
	for i, o := range r.Rows {
		rows[i] = RowOutcomeDTO{
			Row:             o.Row,
			AgreementNumber: o.AgreementNumber,
			BoxType:         o.BoxType,
			Status:          string(o.Status),
			Reason:          o.Reason,
		}
	}
	return IngestReportDTO{
		UploadID:   r.UploadID,
		Workbook:   r.Workbook,
		Sheet:      r.Sheet,
		HeaderRow:  r.HeaderRow,
		Attempted:  r.Attempted,
		Inserted:   r.Inserted,
		Duplicates: r.Duplicates,
		Skipped:    r.Skipped,
		Invalid:    r.Invalid,
		Rows:       rows,
	}
}
