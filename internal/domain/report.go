package domain

import "time"

const ReportDateLayout = "2006-01-02"

type ReportPeriod struct {
	Start time.Time
	End   time.Time
}

type AdminActivity struct {
	AdminID int64
	Name    string
	Count   int
}

type ReportStats struct {
	TotalRevocations    int
	TotalReinstatements int
	UniqueAdmins        int
	MostActiveAdmin     *AdminActivity
}

type DailyActivity struct {
	Date           string
	Revocations    int
	Reinstatements int
	Total          int
}

type RevocationReport struct {
	Period         ReportPeriod
	GeneratedAt    time.Time
	Stats          ReportStats
	Daily          []DailyActivity
	Revocations    []RevocationLog
	Reinstatements []RevocationLog
}
