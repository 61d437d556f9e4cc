package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/pkg/salesforce"
)

// sObjectName is the custom object ICP profiles land on.
const sObjectName = "ICP_Profile__c"

// SalesforceExporter writes profiles as ICP_Profile__c records.
type SalesforceExporter struct {
	client salesforce.Client
}

// NewSalesforceExporter wraps an authenticated client.
func NewSalesforceExporter(client salesforce.Client) *SalesforceExporter {
	return &SalesforceExporter{client: client}
}

func (e *SalesforceExporter) Platform() string { return "salesforce" }

func (e *SalesforceExporter) Export(ctx context.Context, job *model.Job) (*model.ExportConfirmation, error) {
	fields, err := profileFields(job)
	if err != nil {
		return nil, err
	}

	record := map[string]any{
		"Name":                 "ICP " + job.ID,
		"Job_Id__c":            fields["job_id"],
		"Mode__c":              fields["mode"],
		"Audience__c":          fields["audience"],
		"Industry__c":          fields["industry"],
		"Company_Size__c":      fields["company_size"],
		"Geography__c":         fields["geography"],
		"Pain_Points__c":       fields["pain_points"],
		"Value_Props__c":       fields["value_propositions"],
		"Sentiment_Score__c":   fields["sentiment_score"],
		"Testimonial_Count__c": fields["testimonial_count"],
	}

	id, err := e.client.InsertOne(ctx, sObjectName, record)
	if err != nil {
		return nil, err
	}

	zap.L().Info("exported to salesforce",
		zap.String("job_id", job.ID),
		zap.String("record_id", id))
	return &model.ExportConfirmation{
		Platform:   e.Platform(),
		RecordID:   id,
		ExportedAt: time.Now().UTC(),
	}, nil
}
