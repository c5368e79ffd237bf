package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"ga_friendliness/internal/domain"
)

const feetToMetres = 0.3048

var hardSurfaces = []string{"ASP", "CON", "BIT", "PEM", "TAR", "MAC"}

var precisionApproaches = map[string]bool{"ILS": true, "LPV": true, "GLS": true, "PAR": true, "MLS": true}

type runwayRow struct {
	LengthFt sql.NullFloat64 `db:"length_ft"`
	Surface  sql.NullString  `db:"surface"`
}

type procedureRow struct {
	Type     string `db:"procedure_type"`
	Approach string `db:"approach_type"`
}

type notificationRow struct {
	H24         bool          `db:"is_h24"`
	AsADHours   bool          `db:"is_as_ad_hours"`
	OnRequest   bool          `db:"is_on_request"`
	NoticeHours sql.NullInt64 `db:"notice_hours"`
}

// AuthoritativeFacts reads runway, procedure and notification facts for one
// airport from the attached authoritative database, matching strictly by
// ICAO ident. It returns domain.ErrNotFound when nothing is attached or the
// airport is unknown there.
func (r *Repo) AuthoritativeFacts(ctx context.Context, airportID string) (domain.AirportFacts, error) {
	if r.aip == "" {
		return domain.AirportFacts{}, domain.ErrNotFound
	}
	var facts domain.AirportFacts
	var name sql.NullString
	err := sqlx.GetContext(ctx, r.db, &name, `SELECT name FROM `+r.aip+`airports WHERE ident = ?`, airportID)
	if errors.Is(err, sql.ErrNoRows) {
		return facts, domain.ErrNotFound
	}
	if err != nil {
		return facts, err
	}
	facts.Name = name.String

	var runways []runwayRow
	if err := sqlx.SelectContext(ctx, r.db, &runways,
		`SELECT length_ft, surface FROM `+r.aip+`runways WHERE airport_ident = ?`, airportID); err != nil {
		return facts, err
	}
	applyRunways(&facts, runways)

	var procs []procedureRow
	if err := sqlx.SelectContext(ctx, r.db, &procs,
		`SELECT COALESCE(procedure_type, '') AS procedure_type, COALESCE(approach_type, '') AS approach_type
		 FROM `+r.aip+`procedures WHERE airport_ident = ?`, airportID); err != nil {
		return facts, err
	}
	applyProcedures(&facts, procs)

	ok, err := r.aipTableExists(ctx, "notification_requirements")
	if err != nil || !ok {
		return facts, err
	}
	var notes []notificationRow
	if err := sqlx.SelectContext(ctx, r.db, &notes,
		`SELECT is_h24, is_as_ad_hours, is_on_request, notice_hours
		 FROM `+r.aip+`notification_requirements WHERE airport_ident = ?`, airportID); err != nil {
		return facts, err
	}
	facts.Notification = mergeNotifications(notes)
	return facts, nil
}

func (r *Repo) aipTableExists(ctx context.Context, table string) (bool, error) {
	args := []any{table}
	if r.dialect.name == mysqlDialect.name {
		args = []any{r.schema, table}
	}
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, r.dialect.tableExists, args...); err != nil {
		return false, err
	}
	return n > 0, nil
}

// applyRunways records the longest runway and whether that runway is paved.
func applyRunways(f *domain.AirportFacts, rows []runwayRow) {
	var longest float64
	var surface string
	for _, rw := range rows {
		if rw.LengthFt.Valid && rw.LengthFt.Float64 > longest {
			longest = rw.LengthFt.Float64
			surface = rw.Surface.String
		}
	}
	if longest <= 0 {
		return
	}
	m := longest * feetToMetres
	f.LongestRunwayM = &m
	if surface != "" {
		hard := isHardSurface(surface)
		f.HardSurface = &hard
	}
}

func isHardSurface(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, p := range hardSurfaces {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func applyProcedures(f *domain.AirportFacts, rows []procedureRow) {
	f.ProceduresKnown = true
	for _, p := range rows {
		if !strings.EqualFold(strings.TrimSpace(p.Type), "approach") {
			continue
		}
		f.InstrumentApproaches++
		if precisionApproaches[strings.ToUpper(strings.TrimSpace(p.Approach))] {
			f.PrecisionApproach = true
		}
	}
}

// mergeNotifications keeps the most restrictive requirement when an
// airport lists several. Equal burdens keep the longer notice period.
func mergeNotifications(rows []notificationRow) *domain.NotificationFacts {
	var out *domain.NotificationFacts
	for _, row := range rows {
		n := &domain.NotificationFacts{H24: row.H24, AsADHours: row.AsADHours, OnRequest: row.OnRequest}
		if row.NoticeHours.Valid {
			h := int(row.NoticeHours.Int64)
			n.NoticeHours = &h
		}
		if out == nil || n.Burden() > out.Burden() ||
			(n.Burden() == out.Burden() && longerNotice(n.NoticeHours, out.NoticeHours)) {
			out = n
		}
	}
	return out
}

func longerNotice(a, b *int) bool {
	return a != nil && (b == nil || *a > *b)
}
