package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type aggregationRequest struct {
	EndTime  string `json:"end_time,omitempty"`
	TaskName string `json:"task_name,omitempty"`
}

// Queries per-task flow totals, either through the nr-api HTTP endpoint or
// straight from ClickHouse.
func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	taskName := flag.String("task", "", "The name of the task to query (optional).")
	apiURL := flag.String("url", "http://localhost:8080/api/v1/aggregate", "Aggregate endpoint for api mode.")
	chAddr := flag.String("ch", "localhost:9000", "ClickHouse address for direct mode.")

	defaultEnd := time.Now().UTC().Format(time.RFC3339)
	endTimeStr := flag.String("end", defaultEnd, "End time in RFC3339 format (e.g., 2025-09-12T15:10:00Z).")

	flag.Parse()

	switch *mode {
	case "api":
		queryViaAPI(*apiURL, *taskName, *endTimeStr)
	case "direct":
		directQueryClickHouse(*chAddr, *taskName, *endTimeStr)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(apiURL, taskName, endTime string) {
	reqBody := aggregationRequest{
		EndTime:  endTime,
		TaskName: taskName,
	}

	jsonReqBody, err := json.Marshal(reqBody)
	if err != nil {
		log.Fatalf("Error marshalling request body: %v", err)
	}

	resp, err := http.Post(apiURL, "application/json", bytes.NewBuffer(jsonReqBody))
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
		return
	}
	fmt.Println(prettyJSON.String())
}

func directQueryClickHouse(addr, taskName, endTimeStr string) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
		},
	})
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer conn.Close()

	endTime, err := time.Parse(time.RFC3339, endTimeStr)
	if err != nil {
		log.Fatalf("Invalid end time: %v", err)
	}

	query := `
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
			WHERE Timestamp <= ?`
	args := []interface{}{endTime}
	if taskName != "" {
		query += " AND TaskName = ?"
		args = append(args, taskName)
	}
	query += `
			GROUP BY TaskName, SrcIP, DstIP, SrcPort, DstPort, Protocol
		)
		GROUP BY TaskName
	`

	rows, err := conn.Query(context.Background(), query, args...)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			task                        string
			totalBytes, totalPackets, n uint64
		)
		if err := rows.Scan(&task, &totalBytes, &totalPackets, &n); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("%-30s flows=%-8d packets=%-10d bytes=%d\n", task, n, totalPackets, totalBytes)
	}
}
