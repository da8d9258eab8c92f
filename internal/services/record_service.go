package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"device-ingest/internal/cache"
	"device-ingest/internal/database"
	"device-ingest/internal/partition"

	"golang.org/x/exp/slog"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
	MaxBatchRecords  = 5000
)

// RowStore persists and reads partition rows.
type RowStore interface {
	InsertRows(ctx context.Context, table string, rows []map[string]any) error
	QueryRows(ctx context.Context, table string, q database.RowQuery) ([]map[string]any, int64, error)
}

// PartitionResolver maps a device and category to its partition.
type PartitionResolver interface {
	PartitionFor(ctx context.Context, identity string, c partition.Category) (*partition.Partition, error)
}

type UploadRecorder interface {
	RecordUpload(identity string)
}

type UpdatePublisher interface {
	PublishUpdate(update cache.Update)
}

type RecordService struct {
	partitions PartitionResolver
	store      RowStore
	uploads    UploadRecorder
	publisher  UpdatePublisher
	now        func() time.Time
	log        *slog.Logger
}

func NewRecordService(partitions PartitionResolver, store RowStore, uploads UploadRecorder, publisher UpdatePublisher, log *slog.Logger) *RecordService {
	return &RecordService{
		partitions: partitions,
		store:      store,
		uploads:    uploads,
		publisher:  publisher,
		now:        time.Now,
		log:        log.With("component", "record_service"),
	}
}

// Upload stores items in the device's partition for c and returns how many
// were written. Keys outside the category schema are ignored.
func (s *RecordService) Upload(ctx context.Context, identity string, c partition.Category, items []map[string]any) (int, error) {
	if len(items) == 0 {
		return 0, invalidRecord("data must contain at least one record")
	}
	if len(items) > MaxBatchRecords {
		return 0, invalidRecord(fmt.Sprintf("at most %d records per upload", MaxBatchRecords))
	}

	p, err := s.partitions.PartitionFor(ctx, identity, c)
	if err != nil {
		return 0, err
	}

	rows, err := BuildRows(p.Schema, identity, items, s.now())
	if err != nil {
		return 0, err
	}
	if err := s.store.InsertRows(ctx, p.Name, rows); err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", p.Name, err)
	}

	s.uploads.RecordUpload(identity)
	s.publisher.PublishUpdate(cache.Update{
		Action:   cache.ActionRecordsUploaded,
		DeviceID: identity,
		Category: string(c),
		Count:    len(rows),
	})
	s.log.Info("records uploaded", "device_id", identity, "category", string(c), "count", len(rows))
	return len(rows), nil
}

// Query selects a page of records.
type Query struct {
	Page     int
	Limit    int
	Uploaded *bool
}

func (q Query) normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type Page struct {
	Data       []map[string]any `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// List returns the device's records for c, newest first.
func (s *RecordService) List(ctx context.Context, identity string, c partition.Category, q Query) (Page, error) {
	q = q.normalize()

	p, err := s.partitions.PartitionFor(ctx, identity, c)
	if err != nil {
		return Page{}, err
	}

	orderBy := "id"
	if p.Schema.HasTimestamp() {
		orderBy = "timestamp"
	}
	rows, total, err := s.store.QueryRows(ctx, p.Name, database.RowQuery{
		Offset:   (q.Page - 1) * q.Limit,
		Limit:    q.Limit,
		Uploaded: q.Uploaded,
		OrderBy:  orderBy,
	})
	if err != nil {
		return Page{}, fmt.Errorf("querying %s: %w", p.Name, err)
	}

	data := make([]map[string]any, len(rows))
	for i, row := range rows {
		data[i] = PresentRow(p.Schema, row)
	}
	return Page{
		Data: data,
		Pagination: Pagination{
			Page:  q.Page,
			Limit: q.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(q.Limit))),
		},
	}, nil
}

// BuildRows converts payload items into column maps for schema. Missing
// fields get zero values and a missing timestamp defaults to now.
func BuildRows(schema partition.Schema, identity string, items []map[string]any, now time.Time) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		row := map[string]any{
			"device_id":   identity,
			"uploaded":    true,
			"upload_date": now,
		}
		for _, f := range schema.Fields {
			v, err := coerce(f, item[f.Name], now)
			if err != nil {
				return nil, invalidRecord(fmt.Sprintf("record %d: %s", i, err))
			}
			row[f.Column] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func coerce(f partition.Field, v any, now time.Time) (any, error) {
	switch f.Kind {
	case partition.KindTime:
		return toTime(f.Name, v, now)
	case partition.KindInt:
		return toInt(f.Name, v)
	default:
		return toString(v), nil
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toInt(name string, v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(t), nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case json.Number:
		return t.Int64()
	case string:
		if t == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}

// toTime accepts epoch milliseconds or an RFC 3339 string.
func toTime(name string, v any, now time.Time) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return now, nil
	case float64:
		if t == 0 {
			return now, nil
		}
		return time.UnixMilli(int64(t)).UTC(), nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case time.Time:
		return t, nil
	case string:
		if t == "" {
			return now, nil
		}
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s must be epoch milliseconds or RFC 3339", name)
		}
		return ts.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%s must be epoch milliseconds or RFC 3339", name)
	}
}

// PresentRow renames table columns back to payload keys.
func PresentRow(schema partition.Schema, row map[string]any) map[string]any {
	out := make(map[string]any, len(schema.Fields)+4)
	out["id"] = row["id"]
	out["deviceId"] = row["device_id"]
	out["uploaded"] = truthy(row["uploaded"])
	out["uploadDate"] = row["upload_date"]
	for _, f := range schema.Fields {
		out[f.Name] = row[f.Column]
	}
	return out
}

// truthy normalises MySQL tinyint booleans.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case uint8:
		return t != 0
	case []byte:
		return len(t) > 0 && t[0] != '0'
	default:
		return false
	}
}
