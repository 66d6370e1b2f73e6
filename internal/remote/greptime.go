package remote

import (
	"context"
	"encoding/json"
	"fmt"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"

	"sensorsync/internal/telemetry"
)

// ingestClient abstracts the GreptimeDB ingester client for testing.
type ingestClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter ingests readings directly into a GreptimeDB table, for
// deployments where the device writes to the time-series store without an
// ingest API in between. The payload travels as a JSON column, keeping the
// producer value shape schemaless end to end.
type GreptimeWriter struct {
	client ingestClient
	table  string
}

// NewGreptimeWriter connects to a GreptimeDB endpoint. The table is created
// automatically on first write.
func NewGreptimeWriter(host, database, tableName string) (*GreptimeWriter, error) {
	cfg := greptime.NewConfig(host).WithDatabase(database)
	cli, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect greptimedb: %w", err)
	}
	if tableName == "" {
		tableName = "sensor_readings"
	}
	return &GreptimeWriter{client: cli, table: tableName}, nil
}

// WriteBatch ingests readings in one write. The ingester acknowledges the
// write as a whole, matching the all-or-nothing batch contract.
func (w *GreptimeWriter) WriteBatch(ctx context.Context, readings []telemetry.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tbl, err := table.New(w.table)
	if err != nil {
		return fmt.Errorf("build table: %w", err)
	}
	if err := tbl.AddTagColumn("device_id", types.STRING); err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	if err := tbl.AddFieldColumn("payload", types.JSON); err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	if err := tbl.AddFieldColumn("ts_local", types.TIMESTAMP_MILLISECOND); err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return fmt.Errorf("build schema: %w", err)
	}

	for _, r := range readings {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		if err := tbl.AddRow(r.DeviceID, string(payload), r.TimestampLocal, r.TimestampUTC); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		return transferErr(err)
	}
	return nil
}
