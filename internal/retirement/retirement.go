// Package retirement projects the income of a monthly savings plan.
package retirement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// Plan rates: the monthly rate starts at BaseRate and grows by RateStep
// after every RateStepMonths months.
const (
	BaseRate       = 0.009
	RateStep       = 0.001
	RateStepMonths = 36
)

// YearChoices are the horizons offered by the simulator.
var YearChoices = []string{"3 anos", "5 anos", "10 anos", "15 anos", "20 ou mais anos"}

// Projection is the outcome of a plan.
type Projection struct {
	Months         int
	MonthlyDeposit float64
	Deposited      float64
	Total          float64
	// MonthlyIncome spreads Total over as many months as were saved.
	MonthlyIncome float64
	// FinalRate is the monthly rate applied in the last month.
	FinalRate float64
}

// Estimate deposits monthlyDeposit at the start of every month, then
// compounds the balance at the month's rate.
func Estimate(monthlyDeposit float64, months int) (Projection, error) {
	if months <= 0 {
		return Projection{}, fmt.Errorf("months must be positive, got %d", months)
	}
	if monthlyDeposit < 0 {
		return Projection{}, errors.New("monthly deposit must not be negative")
	}

	var total float64
	rate := BaseRate
	applied := rate
	for m := 1; m <= months; m++ {
		total += monthlyDeposit
		total *= 1 + rate
		applied = rate
		if m%RateStepMonths == 0 {
			rate += RateStep
		}
	}

	return Projection{
		Months:         months,
		MonthlyDeposit: monthlyDeposit,
		Deposited:      monthlyDeposit * float64(months),
		Total:          total,
		MonthlyIncome:  total / float64(months),
		FinalRate:      applied,
	}, nil
}

// MonthsFromChoice converts a horizon such as "10 anos", "20 ou mais anos"
// or "5" into months using its leading number of years.
func MonthsFromChoice(choice string) (int, error) {
	s := strings.TrimSpace(choice)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(s)
	}
	years, err := strconv.Atoi(s[:end])
	if err != nil || years <= 0 {
		return 0, fmt.Errorf("invalid horizon %q: expected a number of years", choice)
	}
	return years * 12, nil
}

// FormatBRL renders v as Brazilian reais, e.g. "R$ 1.272,57".
func FormatBRL(v float64) string {
	if v < 0 {
		return "-R$ " + humanize.FormatFloat("#.###,##", -v)
	}
	return "R$ " + humanize.FormatFloat("#.###,##", v)
}
