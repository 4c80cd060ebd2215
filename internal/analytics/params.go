package analytics

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Значения по умолчанию для параметров одиночных метрик.
const (
	DefaultTrendPeriod = "day"
	DefaultTrendDays   = 30
	DefaultPerfLimit   = 10
	DefaultPerfSort    = "revenue"
	DefaultRevenuePer  = "month"
	DefaultWindowDays  = 30
)

// TrendParams - параметры SalesTrends.
type TrendParams struct {
	Period string `validate:"oneof=day week month"`
	Days   int    `validate:"min=1,max=3650"`
}

// PerformanceParams - параметры ProductPerformance.
type PerformanceParams struct {
	Limit  int    `validate:"min=1,max=100"`
	SortBy string `validate:"oneof=revenue quantity orders"`
}

// PeriodParams - параметры RevenueByPeriod. Границы включительные.
type PeriodParams struct {
	Period string `validate:"oneof=day week month year"`
	Start  *time.Time
	End    *time.Time
}

// WindowParams - скользящее окно в днях.
type WindowParams struct {
	Days int `validate:"min=1,max=3650"`
}

type limitParams struct {
	Limit int `validate:"min=1,max=100"`
}

type thresholdParams struct {
	Threshold int `validate:"min=0"`
}

// periodFormats - усечение date_trunc и формат ключа периода.
var periodFormats = map[string][2]string{
	"day":   {"day", "YYYY-MM-DD"},
	"week":  {"week", `IYYY-"W"IW`},
	"month": {"month", "YYYY-MM"},
	"year":  {"year", "YYYY"},
}

// perfOrder - допустимые ключи сортировки ProductPerformance.
var perfOrder = map[string]string{
	"revenue":  "total_revenue",
	"quantity": "total_sold",
	"orders":   "order_count",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// check проверяет структуру параметров и приводит ошибки к ErrInvalidArgument.
func check(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s=%v fails %s", strings.ToLower(fe.Field()), fe.Value(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidArgument, strings.Join(parts, "; "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}

func (p *TrendParams) normalize() error {
	if p.Period == "" {
		p.Period = DefaultTrendPeriod
	}
	if p.Days == 0 {
		p.Days = DefaultTrendDays
	}
	p.Period = strings.ToLower(p.Period)
	return check(p)
}

func (p *PerformanceParams) normalize() error {
	if p.Limit == 0 {
		p.Limit = DefaultPerfLimit
	}
	if p.SortBy == "" {
		p.SortBy = DefaultPerfSort
	}
	p.SortBy = strings.ToLower(p.SortBy)
	return check(p)
}

func (p *PeriodParams) normalize() error {
	if p.Period == "" {
		p.Period = DefaultRevenuePer
	}
	p.Period = strings.ToLower(p.Period)
	if err := check(p); err != nil {
		return err
	}
	if p.Start != nil && p.End != nil && p.End.Before(*p.Start) {
		return fmt.Errorf("%w: end date precedes start date", ErrInvalidArgument)
	}
	return nil
}

func (p *WindowParams) normalize() error {
	if p.Days == 0 {
		p.Days = DefaultWindowDays
	}
	return check(p)
}

// dateArg передает необязательную дату в запрос как NULL или YYYY-MM-DD.
func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}
