package spapi

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	perr "mixshift/internal/platform/errors"
)

const reportsPath = "/reports/2021-06-30"

// maxDocument bounds a decompressed report document
const maxDocument = 256 << 20

// CreateReport requests a report and returns its id
func (c *Client) CreateReport(ctx context.Context, call Call, spec CreateReportSpec) (string, error) {
	if spec.ReportType == "" {
		spec.ReportType = ReportTypeSQP
	}
	var out createReportResponse
	if err := c.do(ctx, OpCreateReport, call, http.MethodPost, reportsPath+"/reports", spec, &out); err != nil {
		return "", err
	}
	if out.ReportID == "" {
		return "", perr.Newf(perr.ErrorCodeUpstream, "spapi createReport returned no reportId")
	}
	return out.ReportID, nil
}

// GetReport returns the processing status of reportID
func (c *Client) GetReport(ctx context.Context, call Call, reportID string) (ReportStatus, error) {
	var out ReportStatus
	err := c.do(ctx, OpGetReport, call, http.MethodGet, reportsPath+"/reports/"+url.PathEscape(reportID), nil, &out)
	return out, err
}

// GetReportDocument resolves a document id to its download url
func (c *Client) GetReportDocument(ctx context.Context, call Call, documentID string) (ReportDocument, error) {
	var out ReportDocument
	err := c.do(ctx, OpGetReportDocument, call, http.MethodGet, reportsPath+"/documents/"+url.PathEscape(documentID), nil, &out)
	return out, err
}

// DownloadRows resolves documentID and decodes the payload into rows.
// The url is pre-signed so no token is sent with the fetch
func (c *Client) DownloadRows(ctx context.Context, call Call, documentID string) ([]Row, error) {
	doc, err := c.GetReportDocument(ctx, call, documentID)
	if err != nil {
		return nil, err
	}
	if doc.URL == "" {
		return nil, perr.Newf(perr.ErrorCodeUpstream, "spapi document %s has no url", documentID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.URL, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "spapi document request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUpstream, "spapi document fetch")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("documentFetch", resp)
	}

	var r io.Reader = resp.Body
	if strings.EqualFold(doc.CompressionAlgorithm, "GZIP") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUpstream, "spapi document gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	b, err := io.ReadAll(io.LimitReader(r, maxDocument))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUpstream, "spapi document read")
	}
	return ParseRows(b)
}

// ParseRows accepts a JSON array, an object whose first array field holds
// the rows (dataByAsin and friends), or JSON lines. Empty input is zero rows
func ParseRows(b []byte) ([]Row, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	switch b[0] {
	case '[':
		var rows []Row
		if err := json.Unmarshal(b, &rows); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeJSON, "report rows")
		}
		return rows, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err == nil {
			keys := make([]string, 0, len(obj))
			for k, v := range obj {
				if t := bytes.TrimSpace(v); len(t) > 0 && t[0] == '[' {
					keys = append(keys, k)
				}
			}
			if len(keys) > 0 {
				sort.Strings(keys)
				var rows []Row
				if err := json.Unmarshal(obj[keys[0]], &rows); err != nil {
					return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "report rows in %s", keys[0])
				}
				return rows, nil
			}
		}
		return parseLines(b)
	}
	return nil, perr.New(perr.ErrorCodeJSON, "report document is not JSON")
}

func parseLines(b []byte) ([]Row, error) {
	var rows []Row
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var row Row
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeJSON, "report json line")
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "report json lines")
	}
	return rows, nil
}
