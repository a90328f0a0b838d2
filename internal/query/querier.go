package query

import (
	"NetReplay/internal/config"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// AggregationRequest asks for per-task totals, optionally filtered by task
// name and an upper time bound.
type AggregationRequest struct {
	TaskName string     `json:"task_name,omitempty"`
	EndTime  *time.Time `json:"end_time,omitempty"`
}

// TaskSummary holds the aggregated totals for one task.
type TaskSummary struct {
	TaskName     string `json:"task_name"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	FlowCount    uint64 `json:"flow_count"`
}

// AggregationResponse is the result of an AggregateFlows call.
type AggregationResponse struct {
	Summaries []*TaskSummary `json:"summaries"`
}

// TraceFlowRequest asks for the lifecycle of a single flow identified by a
// set of key/value pairs (SrcIP, DstIP, SrcPort, DstPort, Protocol).
type TraceFlowRequest struct {
	TaskName string            `json:"task_name"`
	FlowKeys map[string]string `json:"flow_keys"`
	EndTime  *time.Time        `json:"end_time,omitempty"`
}

// FlowLifecycle describes when a flow was first and last seen and its totals.
type FlowLifecycle struct {
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	TotalPackets uint64    `json:"total_packets"`
	TotalBytes   uint64    `json:"total_bytes"`
}

// Querier defines the interface for querying flow data.
type Querier interface {
	AggregateFlows(ctx context.Context, req *AggregationRequest) (*AggregationResponse, error)
	TraceFlow(ctx context.Context, req *TraceFlowRequest) (*FlowLifecycle, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})

	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// AggregateFlows builds and executes a dynamic aggregation query. Snapshots
// are cumulative within a measurement period, so totals come from the latest
// snapshot of each flow rather than a plain sum.
func (q *clickhouseQuerier) AggregateFlows(ctx context.Context, req *AggregationRequest) (*AggregationResponse, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			TaskName,
			SUM(LatestByteCount) AS TotalBytes,
			SUM(LatestPacketCount) AS TotalPackets,
			COUNT(*) AS FlowCount
		FROM (
			SELECT
				TaskName,
				argMax(ByteCount, Timestamp) AS LatestByteCount,
				argMax(PacketCount, Timestamp) AS LatestPacketCount
			FROM flow_metrics
	`)

	var whereClauses []string
	args := []interface{}{}

	if req.EndTime != nil {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, *req.EndTime)
	}
	if req.TaskName != "" {
		whereClauses = append(whereClauses, "TaskName = ?")
		args = append(args, req.TaskName)
	}

	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	queryBuilder.WriteString(`
			GROUP BY TaskName, SrcIP, DstIP, SrcPort, DstPort, Protocol
		)
		GROUP BY TaskName
	`)

	rows, err := q.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var summaries []*TaskSummary
	for rows.Next() {
		var summary TaskSummary
		if err := rows.Scan(&summary.TaskName, &summary.TotalBytes, &summary.TotalPackets, &summary.FlowCount); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation result: %w", err)
		}
		summaries = append(summaries, &summary)
	}

	return &AggregationResponse{Summaries: summaries}, nil
}

// TraceFlow executes a query to trace the lifecycle of a single flow.
func (q *clickhouseQuerier) TraceFlow(ctx context.Context, req *TraceFlowRequest) (*FlowLifecycle, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			min(StartTime) AS FirstSeen,
			max(EndTime) AS LastSeen,
			max(PacketCount) AS TotalPackets,
			max(ByteCount) AS TotalBytes
		FROM flow_metrics
	`)

	var whereClauses []string
	args := []interface{}{}

	whereClauses = append(whereClauses, "TaskName = ?")
	args = append(args, req.TaskName)

	for key, value := range req.FlowKeys {
		// Basic validation to prevent arbitrary column injection
		switch key {
		case "SrcIP", "DstIP", "SrcPort", "DstPort", "Protocol":
			whereClauses = append(whereClauses, fmt.Sprintf("%s = ?", key))
			args = append(args, value)
		default:
			return nil, fmt.Errorf("unsupported flow key: %s, only SrcIP, DstIP, SrcPort, DstPort, Protocol are allowed", key)
		}
	}

	if req.EndTime != nil {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, *req.EndTime)
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))

	var result FlowLifecycle
	row := q.conn.QueryRow(ctx, queryBuilder.String(), args...)
	if err := row.Scan(&result.FirstSeen, &result.LastSeen, &result.TotalPackets, &result.TotalBytes); err != nil {
		return nil, fmt.Errorf("failed to scan flow lifecycle result: %w", err)
	}

	return &result, nil
}
