package jobs_test

import (
	"context"
	"time"

	"github.com/odyssey-erp/ledgercore/internal/engine"
	"github.com/odyssey-erp/ledgercore/jobs"
)

type recordingChecker struct {
	inner     jobs.IntegrityChecker
	companies []int64
	asOf      time.Time
}

func (c *recordingChecker) Integrity(ctx context.Context, companyID int64, asOf time.Time) (engine.IntegrityReport, error) {
	c.companies = append(c.companies, companyID)
	c.asOf = asOf
	if c.inner == nil {
		return engine.IntegrityReport{CompanyID: companyID}, nil
	}
	return c.inner.Integrity(ctx, companyID, asOf)
}
