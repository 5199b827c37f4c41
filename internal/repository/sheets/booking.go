package sheets

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

// Column names as written in the header row.
const (
	colID         = "id"
	colName       = "name"
	colAge        = "age"
	colGender     = "gender"
	colPhone      = "phone"
	colDoctorID   = "doctor_id"
	colDoctor     = "doctor"
	colDepartment = "department"
	colDate       = "date"
	colTime       = "time"
	colToken      = "token"
	colProblem    = "problem"
	colTimestamp  = "timestamp"
)

var headerAliases = map[string]string{
	"patient_name":     colName,
	"patient_age":      colAge,
	"patient_gender":   colGender,
	"patient_phone":    colPhone,
	"doctor_name":      colDoctor,
	"appointment_date": colDate,
	"appointment_time": colTime,
	"created_at":       colTimestamp,
	"reason":           colProblem,
	"symptoms":         colProblem,
}

// DoctorResolver maps the display names found in legacy sheets to doctors.
type DoctorResolver interface {
	ByName(name string) (*model.Doctor, bool)
}

type BookingRepository struct {
	client  *Client
	doctors DoctorResolver
	loc     *time.Location
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewBookingRepository(client *Client, doctors DoctorResolver, loc *time.Location, log *logger.Logger, m *metrics.Metrics) *BookingRepository {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BookingRepository{client: client, doctors: doctors, loc: loc, logger: log, metrics: m}
}

func (r *BookingRepository) observe(op string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.RepositoryOperations.WithLabelValues(op, metrics.Status(err)).Inc()
	r.metrics.RepositoryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (r *BookingRepository) FetchAll(ctx context.Context, filter model.BookingFilter) (bookings []model.Booking, err error) {
	defer func(start time.Time) { r.observe("fetch", start, err) }(time.Now())

	rows, err := r.client.Rows(ctx)
	if err != nil {
		return nil, errors.Persistence("failed to fetch bookings", err)
	}
	if len(rows) == 0 {
		return []model.Booking{}, nil
	}

	cols, err := columnIndex(rows[0])
	if err != nil {
		return nil, errors.Persistence("failed to read sheet header", err)
	}

	bookings = make([]model.Booking, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		// Sheet rows are 1-based and the header is row 1.
		rowNum := i + 2
		b, err := r.decode(cols, row, rowNum)
		if err != nil {
			r.logger.Warn("skipping malformed booking row", "row", rowNum, "error", err.Error())
			if r.metrics != nil {
				r.metrics.MalformedRecords.Inc()
			}
			continue
		}
		if filter.Matches(&b, r.loc) {
			bookings = append(bookings, b)
		}
	}
	return bookings, nil
}

func (r *BookingRepository) Append(ctx context.Context, booking *model.Booking) (err error) {
	defer func(start time.Time) { r.observe("append", start, err) }(time.Now())

	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	if err := r.client.Append(ctx, encode(booking, r.loc)); err != nil {
		return errors.Persistence("failed to append booking", err)
	}
	return nil
}

// Ping reports the sheet as unhealthy while the breaker is open.
func (r *BookingRepository) Ping(ctx context.Context) error {
	if r.client.State() == "open" {
		return errors.Persistence("sheets endpoint unavailable", nil)
	}
	return ctx.Err()
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Join(strings.Fields(h), "_")
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return h
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, seen := cols[name]; !seen && name != "" {
			cols[name] = i
		}
	}

	_, hasID := cols[colDoctorID]
	_, hasName := cols[colDoctor]
	if !hasID && !hasName {
		return nil, fmt.Errorf("missing doctor column")
	}
	for _, required := range []string{colDate, colTime} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %s column", required)
		}
	}
	return cols, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

func cell(cols map[string]int, row []string, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (r *BookingRepository) decode(cols map[string]int, row []string, rowNum int) (model.Booking, error) {
	get := func(name string) string { return cell(cols, row, name) }

	b := model.Booking{
		ID:            get(colID),
		PatientName:   get(colName),
		PatientGender: model.NormalizeGender(get(colGender)),
		PatientPhone:  get(colPhone),
		Problem:       get(colProblem),
		DoctorID:      get(colDoctorID),
		DoctorName:    get(colDoctor),
		Department:    get(colDepartment),
		Token:         get(colToken),
	}
	if b.ID == "" {
		b.ID = "row-" + strconv.Itoa(rowNum)
	}

	if b.DoctorID == "" {
		doc, ok := r.doctors.ByName(b.DoctorName)
		if !ok {
			return b, errors.Malformed(fmt.Sprintf("unknown doctor %q", b.DoctorName), nil)
		}
		b.DoctorID = doc.ID
		if b.Department == "" {
			b.Department = doc.Department
		}
	}

	d, err := model.ParseDate(get(colDate), r.loc)
	if err != nil {
		return b, errors.Malformed("unparsable date", err)
	}
	t, err := model.ParseTimeOfDay(get(colTime), r.loc)
	if err != nil {
		return b, errors.Malformed("unparsable time", err)
	}
	b.AppointmentDate = d.String()
	b.AppointmentTime = t.String()

	if age := get(colAge); age != "" {
		if n, err := strconv.ParseFloat(age, 64); err == nil && n > 0 {
			b.PatientAge = int(n)
		}
	}
	b.TokenSeq = tokenSeq(b.Token)

	if ts := get(colTimestamp); ts != "" {
		if created, err := time.Parse(time.RFC3339, ts); err == nil {
			b.CreatedAt = created
		}
	}
	return b, nil
}

// tokenSeq extracts the numeric part of "7", "7.0" or "S7".
func tokenSeq(token string) int {
	digits := strings.TrimLeftFunc(token, func(r rune) bool { return r < '0' || r > '9' })
	n, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}
	return int(n)
}

func encode(b *model.Booking, loc *time.Location) url.Values {
	v := url.Values{}
	v.Set(colID, b.ID)
	v.Set(colName, b.PatientName)
	v.Set(colAge, strconv.Itoa(b.PatientAge))
	v.Set(colGender, string(b.PatientGender))
	v.Set(colPhone, b.PatientPhone)
	v.Set(colDoctorID, b.DoctorID)
	v.Set(colDoctor, b.DoctorName)
	v.Set(colDepartment, b.Department)
	v.Set(colDate, b.AppointmentDate)
	v.Set(colTime, b.AppointmentTime)
	v.Set(colToken, b.Token)
	v.Set(colProblem, b.Problem)
	v.Set(colTimestamp, b.CreatedAt.In(loc).Format(time.RFC3339))
	return v
}
