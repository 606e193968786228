package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/config"
	"example.com/backstage/services/attendance/internal/models"
)

// ElasticClient indexes closed attendance records for the ops dashboard.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client.
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{client: client, config: cfg}, nil
}

// IndexRecord indexes one attendance record. The deterministic record key is
// the document id, so re-indexing after an edit overwrites in place.
func (c *ElasticClient) IndexRecord(ctx context.Context, rec *models.AttendanceRecord) error {
	doc := map[string]interface{}{
		"record_id":          rec.RecordID,
		"employee_id":        rec.EmployeeID,
		"company_id":         rec.CompanyID,
		"work_date":          rec.WorkDate.Format("2006-01-02"),
		"clock_in":           rec.ClockIn,
		"clock_out":          rec.ClockOut,
		"work_minutes":       rec.WorkMinutes,
		"base_pay":           rec.BasePay,
		"overtime_pay":       rec.OvertimePay,
		"night_pay":          rec.NightPay,
		"holiday_pay":        rec.HolidayPay,
		"weekly_holiday_pay": rec.WeeklyHolidayPay,
		"total_pay":          rec.TotalPay,
		"status":             rec.Status,
		"version":            rec.Version,
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal attendance document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: rec.RecordID,
		Body:       bytes.NewReader(docJSON),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Info().Str("record_id", rec.RecordID).Msg("Attendance record indexed")
	return nil
}

// DeleteRecord removes a record document. Used as the compensating action
// when a chain fails after indexing.
func (c *ElasticClient) DeleteRecord(ctx context.Context, recordID string) error {
	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.DeleteRequest{
		Index:      indexName,
		DocumentID: recordID,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch delete request")
	}
	defer res.Body.Close()

	// 404 means the index step never reached Elasticsearch; nothing to undo.
	if res.IsError() && res.StatusCode != 404 {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch delete error: %v", e)
	}
	return nil
}
