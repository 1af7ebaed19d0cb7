package services

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// Glide column data types handled by the transformer.
const (
	TypeString   = "string"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeDateTime = "date-time"
	TypeImageURI = "image-uri"
	TypeEmail    = "email-address"
)

// FieldError is one transformer failure, ready to be ledgered by the caller.
type FieldError struct {
	Type       string         // VALIDATION_ERROR or TRANSFORM_ERROR
	Message    string
	RecordData map[string]any // context to locate the failure
}

// TransformResult carries the relational-shaped record for one Glide row
// (nil when the whole row was rejected) plus the field errors accumulated
// while transforming it.
type TransformResult struct {
	Record models.Record
	Errors []FieldError
}

// Transformer converts loosely typed Glide rows into relational records
// according to a mapping's per-field rules. The untyped row shape never
// propagates past this boundary.
type Transformer struct {
	logger *zap.Logger
}

// NewTransformer creates a transformer.
func NewTransformer(logger *zap.Logger) *Transformer {
	return &Transformer{logger: logger.Named("transformer")}
}

// Transform applies the mapping's column rules to one row. Per-field
// failures drop only that field's assignment; the rest of the record still
// syncs. A row whose stable identifier is missing is rejected outright.
func (t *Transformer) Transform(row models.GlideRow, mapping *models.Mapping) *TransformResult {
	result := &TransformResult{Record: make(models.Record)}

	rowID := ""
	if idMapping := mapping.RowIDMapping(); idMapping != nil {
		if raw, ok := lookupField(row, *idMapping); ok {
			if s, ok := raw.(string); ok {
				rowID = s
			}
		}
	}

	for _, cm := range mapping.ColumnMappings {
		raw, ok := lookupField(row, cm)
		if !ok {
			// Partial source rows are expected, not an error.
			continue
		}

		value, fieldErr := t.transformField(raw, cm, rowID)
		if fieldErr != nil {
			result.Errors = append(result.Errors, *fieldErr)
			continue
		}
		result.Record[cm.SupabaseColumn] = value
	}

	if result.Record.RowID() == "" {
		result.Record = nil
		result.Errors = append(result.Errors, FieldError{
			Type:    models.ErrorTypeValidation,
			Message: "missing required identifier: row has no value for " + models.GlideRowIDColumn,
			RecordData: map[string]any{
				"glide_table": mapping.GlideTable,
				"row":         row,
			},
		})
	}

	return result
}

// transformField coerces one raw value. Unexpected panics while coercing are
// reported as TRANSFORM_ERROR with the same per-field drop semantics.
func (t *Transformer) transformField(raw any, cm models.ColumnMapping, rowID string) (value any, fieldErr *FieldError) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			fieldErr = &FieldError{
				Type:       models.ErrorTypeTransform,
				Message:    fmt.Sprintf("unexpected error transforming field %q: %v", cm.GlideColumnName, r),
				RecordData: fieldContext(cm, raw, rowID),
			}
		}
	}()

	switch cm.DataType {
	case TypeNumber:
		return t.coerceNumber(raw, cm, rowID)
	case TypeBoolean:
		return t.coerceBoolean(raw, cm, rowID)
	case TypeDateTime:
		return t.coerceDateTime(raw, cm, rowID)
	case TypeImageURI:
		s := coerceString(raw)
		if s != nil {
			if _, err := url.ParseRequestURI(*s); err != nil {
				// Loose validation: upstream image URIs are frequently
				// malformed and still worth keeping.
				t.logger.Warn("Malformed image URI passed through",
					zap.String("glide_column", cm.GlideColumnName),
					zap.String("supabase_column", cm.SupabaseColumn))
			}
		}
		return stringOrNil(s), nil
	case TypeEmail:
		s := coerceString(raw)
		if s != nil {
			if _, err := mail.ParseAddress(*s); err != nil {
				t.logger.Warn("Malformed email address passed through",
					zap.String("glide_column", cm.GlideColumnName),
					zap.String("supabase_column", cm.SupabaseColumn))
			}
		}
		return stringOrNil(s), nil
	default:
		return stringOrNil(coerceString(raw)), nil
	}
}

func (t *Transformer) coerceNumber(raw any, cm models.ColumnMapping, rowID string) (any, *FieldError) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f, nil
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f, nil
		}
	case nil:
		return nil, nil
	}

	return nil, &FieldError{
		Type:       models.ErrorTypeValidation,
		Message:    fmt.Sprintf("field %q is not a valid number: %v", cm.GlideColumnName, raw),
		RecordData: fieldContext(cm, raw, rowID),
	}
}

func (t *Transformer) coerceBoolean(raw any, cm models.ColumnMapping, rowID string) (any, *FieldError) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	case nil:
		return nil, nil
	}

	return nil, &FieldError{
		Type:       models.ErrorTypeValidation,
		Message:    fmt.Sprintf("field %q is not a valid boolean: %v", cm.GlideColumnName, raw),
		RecordData: fieldContext(cm, raw, rowID),
	}
}

// dateLayouts are the formats accepted for date-time fields, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func (t *Transformer) coerceDateTime(raw any, cm models.ColumnMapping, rowID string) (any, *FieldError) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC().Format(time.RFC3339), nil
			}
		}
	case nil:
		return nil, nil
	}

	return nil, &FieldError{
		Type:       models.ErrorTypeValidation,
		Message:    fmt.Sprintf("field %q is not a valid date: %v", cm.GlideColumnName, raw),
		RecordData: fieldContext(cm, raw, rowID),
	}
}

// lookupField reads a mapped field from the row, trying the column name
// first and the column id as fallback. The second return is false when the
// row simply does not carry the field.
func lookupField(row models.GlideRow, cm models.ColumnMapping) (any, bool) {
	if v, ok := row[cm.GlideColumnName]; ok {
		return v, true
	}
	if v, ok := row[cm.GlideColumnID]; ok {
		return v, true
	}
	return nil, false
}

func coerceString(raw any) *string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return &v
	default:
		s := fmt.Sprintf("%v", v)
		return &s
	}
}

// stringOrNil unwraps a *string so null passthrough stays a plain nil in the
// record map.
func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// fieldContext snapshots enough of the failure to locate it later.
func fieldContext(cm models.ColumnMapping, raw any, rowID string) map[string]any {
	return map[string]any{
		"glide_column_id":   cm.GlideColumnID,
		"glide_column_name": cm.GlideColumnName,
		"supabase_column":   cm.SupabaseColumn,
		"raw_value":         fmt.Sprintf("%v", raw),
		"row_id":            rowID,
	}
}
