package influxdb

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/posture"
)

const measurement = "posture"

type Repository struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	org      string
	bucket   string
}

// NewRepository connects to InfluxDB and checks that it is healthy
func NewRepository(ctx context.Context, url, token, org, bucket string) (*Repository, error) {
	client := influxdb2.NewClient(url, token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB is not healthy: %s", health.Status)
	}

	return &Repository{
		client: client,
		// Blocking writes so a feed event is only published once the samples are queryable
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
		org:      org,
		bucket:   bucket,
	}, nil
}

// Close releases the client
func (r *Repository) Close() {
	r.client.Close()
}

// Health pings the server
func (r *Repository) Health(ctx context.Context) error {
	ok, err := r.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("InfluxDB ping failed")
	}
	return nil
}

// StoreRecords writes samples for subjectID
func (r *Repository) StoreRecords(ctx context.Context, subjectID string, samples []posture.Sample) error {
	points := make([]*write.Point, 0, len(samples))
	for _, sample := range samples {
		points = append(points, newPoint(subjectID, sample))
	}

	if err := r.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// QueryRecords returns the samples selected by params in ascending time order
func (r *Repository) QueryRecords(ctx context.Context, params models.QueryParams) ([]posture.Sample, error) {
	query := buildFluxQuery(params, r.bucket)

	result, err := r.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer result.Close()

	samples := make([]posture.Sample, 0)
	for result.Next() {
		record := result.Record()

		sample := posture.Sample{Timestamp: record.Time()}
		if id, ok := record.ValueByKey("record_id").(string); ok {
			sample.ID = id
		}
		// a point written without the field pivots to nil and is filtered by the aggregator
		if sitting, ok := record.ValueByKey("sitting").(bool); ok {
			sample.Sitting = &sitting
		}
		samples = append(samples, sample)
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("error parsing results: %w", result.Err())
	}

	if params.Latest() {
		slices.Reverse(samples)
	}
	return samples, nil
}

func newPoint(subjectID string, sample posture.Sample) *write.Point {
	p := influxdb2.NewPointWithMeasurement(measurement)
	p.SetTime(sample.Timestamp)
	p.AddTag("subject_id", subjectID)
	p.AddField("record_id", sample.ID)
	if sample.Sitting != nil {
		p.AddField("sitting", *sample.Sitting)
	}
	return p
}

// buildFluxQuery builds the Flux query for params
func buildFluxQuery(params models.QueryParams, bucket string) string {
	start := params.StartTime
	if start.IsZero() {
		start = time.Unix(0, 0)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", fluxString(bucket))
	if params.EndTime.IsZero() {
		fmt.Fprintf(&b, "|> range(start: %s)\n", start.UTC().Format(time.RFC3339Nano))
	} else {
		fmt.Fprintf(&b, "|> range(start: %s, stop: %s)\n",
			start.UTC().Format(time.RFC3339Nano), params.EndTime.UTC().Format(time.RFC3339Nano))
	}
	fmt.Fprintf(&b, "|> filter(fn: (r) => r._measurement == %s and r.subject_id == %s)\n",
		fluxString(measurement), fluxString(params.SubjectID))
	b.WriteString(`|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")` + "\n")
	b.WriteString(`|> group()` + "\n")

	// latest-N queries read newest first and are reversed after scanning
	fmt.Fprintf(&b, `|> sort(columns: ["_time"], desc: %t)`+"\n", params.Latest())

	if params.Limit > 0 {
		fmt.Fprintf(&b, "|> limit(n: %d)\n", params.Limit)
	}

	return b.String()
}

func fluxString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
