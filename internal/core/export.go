package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"fieldcore/internal/blob"
	"fieldcore/pkg/domain"
)

const exportPageSize = 500

var fieldExportHeader = []string{
	"id", "name", "display_name", "data_type", "type_code", "sort",
	"required", "hidden", "system", "display_field", "description",
}

// exportRow is one NDJSON line of a record export.
type exportRow struct {
	ID       int64          `json:"id"`
	ModuleID int            `json:"moduleId"`
	Payload  string         `json:"payload,omitempty"`
	Fields   map[string]any `json:"fields"`
}

func exportKey(scope domain.Scope, kind, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%s.%s", kind, scope.TenantID, scope.AppCode, uuid.NewString(), ext)
}

func exportMetadata(scope domain.Scope, kind string, rows int) map[string]string {
	return map[string]string{
		"tenant": scope.TenantID,
		"app":    scope.AppCode,
		"kind":   kind,
		"rows":   strconv.Itoa(rows),
	}
}

// ExportFields writes the field catalog of ctx's scope to sink as CSV.
func (s *Service) ExportFields(ctx context.Context, sink blob.Store) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "export_fields", func(ctx context.Context) error {
		scope, err := domain.ScopeFrom(ctx)
		if err != nil {
			return err
		}
		fields, err := s.catalog.ListFields(ctx)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(fieldExportHeader); err != nil {
			return err
		}
		for _, f := range fields {
			row := []string{
				strconv.FormatInt(f.ID, 10), f.Name, f.DisplayName, f.DataType.String(),
				strconv.Itoa(int(f.DataType)), strconv.Itoa(f.Sort),
				strconv.FormatBool(f.IsRequired), strconv.FormatBool(f.IsHidden),
				strconv.FormatBool(f.IsSystem), strconv.FormatBool(f.IsDisplayField), f.Description,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		info, err = sink.Put(ctx, exportKey(scope, "fields", "csv"), &buf, blob.PutOptions{
			ContentType: "text/csv",
			Metadata:    exportMetadata(scope, "fields", len(fields)),
		})
		return err
	})
	return info, err
}

// ExportRecords writes every record matching cond to sink as newline
// delimited JSON, newest first.
func (s *Service) ExportRecords(ctx context.Context, cond domain.Condition, sink blob.Store) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "export_records", func(ctx context.Context) error {
		scope, err := domain.ScopeFrom(ctx)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		rows := 0
		for page := (domain.Page{Limit: exportPageSize}); ; page.Offset += exportPageSize {
			recs, err := s.records.QueryRecords(ctx, cond, page)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				row := exportRow{
					ID:       rec.ID,
					ModuleID: rec.ModuleID,
					Payload:  rec.Payload,
					Fields:   rec.Map(),
				}
				if err := enc.Encode(row); err != nil {
					return fmt.Errorf("encode record %d: %w", rec.ID, err)
				}
				rows++
			}
			if len(recs) < exportPageSize {
				break
			}
		}
		info, err = sink.Put(ctx, exportKey(scope, "records", "ndjson"), &buf, blob.PutOptions{
			ContentType: "application/x-ndjson",
			Metadata:    exportMetadata(scope, "records", rows),
		})
		return err
	})
	return info, err
}
