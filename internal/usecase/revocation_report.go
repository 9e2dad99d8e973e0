package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"certledger/internal/domain"
)

type ReportService struct {
	Logs  RevocationLogRepository
	Clock Clock
}

func NewReportService(logs RevocationLogRepository, clock Clock) *ReportService {
	return &ReportService{Logs: logs, Clock: clock}
}

// Generate aggregates the revocation logs created within [start, end].
func (s *ReportService) Generate(ctx context.Context, start, end time.Time) (domain.RevocationReport, error) {
	if s == nil || s.Logs == nil {
		return domain.RevocationReport{}, errors.New("revocation log repository is required")
	}
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return domain.RevocationReport{}, fmt.Errorf("%w: start date is after end date", domain.ErrInvalidRequest)
	}
	logs, err := s.Logs.ListLogsBetween(ctx, start, end)
	if err != nil {
		return domain.RevocationReport{}, err
	}
	report := BuildReport(logs, start, end)
	report.GeneratedAt = s.now().UTC()
	return report, nil
}

// BuildReport is the pure aggregation behind Generate.
func BuildReport(logs []domain.RevocationLog, start, end time.Time) domain.RevocationReport {
	report := domain.RevocationReport{
		Period:         domain.ReportPeriod{Start: start, End: end},
		Revocations:    []domain.RevocationLog{},
		Reinstatements: []domain.RevocationLog{},
	}
	revokers := make(map[int64]struct{})
	activity := make(map[int64]*domain.AdminActivity)
	for _, l := range logs {
		switch l.ActionType {
		case domain.ActionRevoke:
			report.Revocations = append(report.Revocations, l)
			revokers[l.AdminID] = struct{}{}
		case domain.ActionReinstate:
			report.Reinstatements = append(report.Reinstatements, l)
		default:
			continue
		}
		a, ok := activity[l.AdminID]
		if !ok {
			a = &domain.AdminActivity{AdminID: l.AdminID}
			activity[l.AdminID] = a
		}
		if a.Name == "" && l.Admin != nil {
			a.Name = l.Admin.Name
		}
		a.Count++
	}
	report.Stats = domain.ReportStats{
		TotalRevocations:    len(report.Revocations),
		TotalReinstatements: len(report.Reinstatements),
		UniqueAdmins:        len(revokers),
		MostActiveAdmin:     mostActive(activity),
	}
	report.Daily = dailyBreakdown(report.Revocations, report.Reinstatements, start, end)
	return report
}

// mostActive picks the highest count; equal counts go to the lowest admin id.
func mostActive(activity map[int64]*domain.AdminActivity) *domain.AdminActivity {
	if len(activity) == 0 {
		return nil
	}
	ranked := make([]*domain.AdminActivity, 0, len(activity))
	for _, a := range activity {
		ranked = append(ranked, a)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].AdminID < ranked[j].AdminID
	})
	top := *ranked[0]
	return &top
}

func dailyBreakdown(revocations, reinstatements []domain.RevocationLog, start, end time.Time) []domain.DailyActivity {
	first := truncateDay(start)
	last := truncateDay(end)
	index := make(map[string]int)
	var days []domain.DailyActivity
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(domain.ReportDateLayout)
		index[key] = len(days)
		days = append(days, domain.DailyActivity{Date: key})
	}
	for _, l := range revocations {
		if i, ok := index[l.CreatedAt.UTC().Format(domain.ReportDateLayout)]; ok {
			days[i].Revocations++
			days[i].Total++
		}
	}
	for _, l := range reinstatements {
		if i, ok := index[l.CreatedAt.UTC().Format(domain.ReportDateLayout)]; ok {
			days[i].Reinstatements++
			days[i].Total++
		}
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *ReportService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
