package query

import (
	"fmt"
	"time"

	apperrors "github.com/nvoss/lagmark/internal/errors"
	"github.com/nvoss/lagmark/internal/storage/types"
)

// Window is a resolved inclusive date range [From, To] in UTC.
type Window struct {
	// Range is the relative keyword the window came from ("1d", "7d",
	// "30d"), empty when the caller gave explicit dates.
	Range string
	From  string
	To    string
}

// ResolveWindow turns query parameters into a concrete date window.
// An explicit from/to pair wins over the range keyword. A relative range
// of N days covers [today-(N-1), today] so today is always included.
func ResolveWindow(rangeParam, from, to, defaultRange string, now time.Time) (Window, error) {
	if from != "" && to != "" {
		fromDay, err := time.Parse(types.DateLayout, from)
		if err != nil {
			return Window{}, fmt.Errorf("%w: from %q", apperrors.ErrInvalidRange, from)
		}
		toDay, err := time.Parse(types.DateLayout, to)
		if err != nil {
			return Window{}, fmt.Errorf("%w: to %q", apperrors.ErrInvalidRange, to)
		}
		if toDay.Before(fromDay) {
			return Window{}, fmt.Errorf("%w: from %s after to %s", apperrors.ErrInvalidRange, from, to)
		}
		return Window{From: from, To: to}, nil
	}

	if rangeParam == "" {
		rangeParam = defaultRange
	}
	if rangeParam == "" {
		rangeParam = "7d"
	}

	days, err := rangeDays(rangeParam)
	if err != nil {
		return Window{}, err
	}

	today := now.UTC()
	return Window{
		Range: rangeParam,
		From:  today.AddDate(0, 0, -(days - 1)).Format(types.DateLayout),
		To:    today.Format(types.DateLayout),
	}, nil
}

// rangeDays maps a relative window keyword to its length in days.
func rangeDays(rangeParam string) (int, error) {
	switch rangeParam {
	case "1d":
		return 1, nil
	case "7d":
		return 7, nil
	case "30d":
		return 30, nil
	default:
		return 0, fmt.Errorf("%w: range %q", apperrors.ErrInvalidRange, rangeParam)
	}
}
