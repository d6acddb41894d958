package service

import (
	"context"

	"mixshift/internal/adapters/notify"
	"mixshift/internal/adapters/spapi"
	"mixshift/internal/services/harvest/domain"
)

// Reports adapts an spapi client to domain.ReportsAPI for search query
// performance reports
func Reports(c *spapi.Client) domain.ReportsAPI { return spapiReports{c: c} }

type spapiReports struct{ c *spapi.Client }

func (r spapiReports) CreateReport(ctx context.Context, c domain.Call, req domain.ReportRequest) (string, error) {
	return r.c.CreateReport(ctx, spapi.Call(c), spapi.CreateReportSpec{
		ReportType:     spapi.ReportTypeSQP,
		MarketplaceIDs: []string{req.MarketplaceID},
		DataStartTime:  req.Start,
		DataEndTime:    req.End,
		ReportOptions: map[string]string{
			"reportPeriod": req.Type.String(),
			"asin":         req.Asins,
		},
	})
}

func (r spapiReports) ReportStatus(ctx context.Context, c domain.Call, reportID string) (domain.ReportStatus, error) {
	st, err := r.c.GetReport(ctx, spapi.Call(c), reportID)
	if err != nil {
		return domain.ReportStatus{}, err
	}
	return domain.ReportStatus{Status: st.ProcessingStatus, DocumentID: st.ReportDocumentID}, nil
}

func (r spapiReports) DownloadRows(ctx context.Context, c domain.Call, documentID string) ([]domain.Row, error) {
	return r.c.DownloadRows(ctx, spapi.Call(c), documentID)
}

// Notifications adapts a notify.Notifier to domain.Notifier
func Notifications(n *notify.Notifier) domain.Notifier { return notifyPort{n: n} }

type notifyPort struct{ n *notify.Notifier }

func (p notifyPort) SendFailure(ctx context.Context, f domain.Failure) {
	p.n.SendFailure(ctx, notify.Failure{
		WorkUnitID: f.WorkUnitID,
		SellerID:   f.SellerID,
		ReportType: f.Type.String(),
		Message:    f.Message,
		RetryCount: f.RetryCount,
		ReportID:   f.ReportID,
		Fatal:      f.Fatal,
	})
}
