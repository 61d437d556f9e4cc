package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/pkg/hubspot"
)

// HubSpotExporter writes profiles as company records with icp_*
// custom properties.
type HubSpotExporter struct {
	client hubspot.Client
}

// NewHubSpotExporter wraps an authenticated client.
func NewHubSpotExporter(client hubspot.Client) *HubSpotExporter {
	return &HubSpotExporter{client: client}
}

func (e *HubSpotExporter) Platform() string { return "hubspot" }

func (e *HubSpotExporter) Export(ctx context.Context, job *model.Job) (*model.ExportConfirmation, error) {
	fields, err := profileFields(job)
	if err != nil {
		return nil, err
	}

	props := map[string]string{
		"name":                  "ICP " + job.ID,
		"icp_job_id":            fields["job_id"],
		"icp_mode":              fields["mode"],
		"icp_audience":          fields["audience"],
		"icp_industry":          fields["industry"],
		"icp_company_size":      fields["company_size"],
		"icp_geography":         fields["geography"],
		"icp_pain_points":       fields["pain_points"],
		"icp_value_props":       fields["value_propositions"],
		"icp_sentiment_score":   fields["sentiment_score"],
		"icp_testimonial_count": fields["testimonial_count"],
	}

	id, err := e.client.CreateCompany(ctx, props)
	if err != nil {
		return nil, err
	}

	zap.L().Info("exported to hubspot",
		zap.String("job_id", job.ID),
		zap.String("record_id", id))
	return &model.ExportConfirmation{
		Platform:   e.Platform(),
		RecordID:   id,
		ExportedAt: time.Now().UTC(),
	}, nil
}
