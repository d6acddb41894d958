package spapi

import "time"

// Processing statuses returned by getReport
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFatal      = "FATAL"
	StatusCancelled  = "CANCELLED"
)

// ReportTypeSQP is the brand analytics search query performance report
const ReportTypeSQP = "GET_BRAND_ANALYTICS_SEARCH_QUERY_PERFORMANCE_REPORT"

// Call identifies who a request is made for; SellerID keys the pacing buckets
type Call struct {
	SellerID    string
	AccessToken string
}

// CreateReportSpec is the body of POST /reports
type CreateReportSpec struct {
	ReportType     string            `json:"reportType"`
	MarketplaceIDs []string          `json:"marketplaceIds"`
	DataStartTime  time.Time         `json:"dataStartTime"`
	DataEndTime    time.Time         `json:"dataEndTime"`
	ReportOptions  map[string]string `json:"reportOptions,omitempty"`
}

// ReportStatus is the subset of getReport we read
type ReportStatus struct {
	ReportID         string `json:"reportId"`
	ProcessingStatus string `json:"processingStatus"`
	ReportDocumentID string `json:"reportDocumentId,omitempty"`
}

// ReportDocument points at the pre-signed download
type ReportDocument struct {
	ReportDocumentID     string `json:"reportDocumentId"`
	URL                  string `json:"url"`
	CompressionAlgorithm string `json:"compressionAlgorithm,omitempty"`
}

// Row is one decoded report record
type Row = map[string]any

type createReportResponse struct {
	ReportID string `json:"reportId"`
}

type apiErrors struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}
