package dashboard

import (
	"context"
	"strings"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/auth"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/ledger"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

type CashChartPoint struct {
	Label   string          `json:"label"` // bucket start, YYYY-MM-DD
	CashIn  decimal.Decimal `json:"cash_in"`
	CashOut decimal.Decimal `json:"cash_out"`
	Net     decimal.Decimal `json:"net"`
}

type CashChartResponse struct {
	Branch  string           `json:"branch"`
	Period  Period           `json:"period"`
	Mode    ledger.Mode      `json:"mode"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Points  []CashChartPoint `json:"points"`
	CashIn  decimal.Decimal  `json:"cash_in"`
	CashOut decimal.Decimal  `json:"cash_out"`
	Net     decimal.Decimal  `json:"net"`
}

// Lister is the slice of the ledger the chart reads.
type Lister interface {
	List(ctx context.Context, f ledger.Filter) ([]models.CashTransaction, error)
}

// staff see their own branch; admins and accountants pick one with ?branch=
func branchFromContext(c *fiber.Ctx) (string, error) {
	if auth.Role(c).Is(models.RoleStaff) {
		branch, _ := c.Locals(auth.CtxBranchKey).(string)
		if strings.TrimSpace(branch) == "" {
			return "", fiber.NewError(fiber.StatusForbidden, "branch information missing")
		}
		return branch, nil
	}

	branch := c.Query("branch")
	if strings.TrimSpace(branch) == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "branch is required")
	}
	return branch, nil
}

// Buckets returns count bucket start dates ending with the bucket that
// contains today.
func Buckets(period Period, count int, today time.Time) []time.Time {
	end := bucketStart(period, models.DateOf(today))
	out := make([]time.Time, count)
	for i := 0; i < count; i++ {
		back := count - 1 - i
		switch period {
		case PeriodWeekly:
			out[i] = end.AddDate(0, 0, -7*back)
		case PeriodMonthly:
			out[i] = end.AddDate(0, -back, 0)
		default:
			out[i] = end.AddDate(0, 0, -back)
		}
	}
	return out
}

// weeks start on Monday
func bucketStart(period Period, d time.Time) time.Time {
	switch period {
	case PeriodWeekly:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// Chart sums transactions into buckets. Rows outside the buckets or not
// counted by mode are skipped.
func Chart(period Period, mode ledger.Mode, buckets []time.Time, txs []models.CashTransaction) ([]CashChartPoint, decimal.Decimal, decimal.Decimal) {
	points := make([]CashChartPoint, len(buckets))
	index := make(map[time.Time]int, len(buckets))
	for i, b := range buckets {
		points[i] = CashChartPoint{Label: b.Format(models.DateLayout), CashIn: decimal.Zero, CashOut: decimal.Zero, Net: decimal.Zero}
		index[b] = i
	}

	_, lines := ledger.Fold(decimal.Zero, txs, mode, nil)

	totalIn, totalOut := decimal.Zero, decimal.Zero
	for _, l := range lines {
		i, ok := index[bucketStart(period, models.DateOf(l.TransactionDate))]
		if !ok {
			continue
		}
		p := &points[i]
		p.CashIn = p.CashIn.Add(l.CashIn)
		p.CashOut = p.CashOut.Add(l.CashOut)
		p.Net = p.CashIn.Sub(p.CashOut)
		totalIn = totalIn.Add(l.CashIn)
		totalOut = totalOut.Add(l.CashOut)
	}
	return points, totalIn, totalOut
}

// GET /api/dashboard/cash-chart?period=daily&count=7&branch=Kochi&mode=confirmed
func CashChartHandler(svc Lister) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branch, err := branchFromContext(c)
		if err != nil {
			return err
		}

		period := Period(c.Query("period", string(PeriodDaily)))
		var count int
		switch period {
		case PeriodWeekly:
			count = 8
		case PeriodMonthly:
			count = 12
		case PeriodDaily:
			count = 7
		default:
			return fiber.NewError(fiber.StatusBadRequest, "period must be daily, weekly or monthly")
		}
		if q := c.QueryInt("count", 0); q != 0 {
			if q < 0 || q > 366 {
				return fiber.NewError(fiber.StatusBadRequest, "count must be between 1 and 366")
			}
			count = q
		}

		mode, ok := ledger.ParseMode(c.Query("mode"))
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "mode must be confirmed or provisional")
		}

		buckets := Buckets(period, count, time.Now())
		from := buckets[0]
		to := models.DateOf(time.Now())

		txs, err := svc.List(c.UserContext(), ledger.Filter{Branch: branch, From: &from, To: &to})
		if err != nil {
			return err
		}

		points, totalIn, totalOut := Chart(period, mode, buckets, txs)

		return c.JSON(CashChartResponse{
			Branch:  branch,
			Period:  period,
			Mode:    mode,
			From:    from.Format(models.DateLayout),
			To:      to.Format(models.DateLayout),
			Points:  points,
			CashIn:  totalIn,
			CashOut: totalOut,
			Net:     totalIn.Sub(totalOut),
		})
	}
}
