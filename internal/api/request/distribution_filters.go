package request

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/validation"
)

// ParseDistributionFilters turns the query parameters of a distribution listing into
// model.DistributionFilters. Every parameter is optional.
//
// Validation rules:
//   - status: comma-separated distribution statuses
//   - startDate/endDate: YYYY-MM-DD or RFC3339; a bare endDate includes that whole day
//   - page/perPage: positive numbers; the service applies defaults and the perPage cap
func ParseDistributionFilters(
	statusParam, projectIDParam, assetManagerIDParam,
	startDateParam, endDateParam, pageParam, perPageParam string,
) (model.DistributionFilters, error) {
	filters := model.DistributionFilters{
		ProjectID:      strings.TrimSpace(projectIDParam),
		AssetManagerID: strings.TrimSpace(assetManagerIDParam),
	}

	if statusParam != "" {
		for _, s := range strings.Split(statusParam, ",") {
			status := model.Status(strings.TrimSpace(strings.ToLower(s)))
			if !model.ValidStatuses[status] {
				return filters, fmt.Errorf("invalid status: %s", status)
			}
			filters.Statuses = append(filters.Statuses, status)
		}
	}

	if startDateParam != "" {
		start, _, err := parseFilterTime(startDateParam)
		if err != nil {
			return filters, fmt.Errorf("invalid startDate format: %w", err)
		}
		filters.StartDate = &start
	}

	if endDateParam != "" {
		end, dateOnly, err := parseFilterTime(endDateParam)
		if err != nil {
			return filters, fmt.Errorf("invalid endDate format: %w", err)
		}
		if dateOnly {
			end = end.Add(24*time.Hour - time.Microsecond)
		}
		filters.EndDate = &end
	}

	if err := validation.ValidateDateRange(filters.StartDate, filters.EndDate); err != nil {
		return filters, err
	}

	var err error
	if filters.Page, err = parsePositive("page", pageParam); err != nil {
		return filters, err
	}
	if filters.PerPage, err = parsePositive("perPage", perPageParam); err != nil {
		return filters, err
	}

	return filters, nil
}

func parsePositive(name, param string) (int, error) {
	if param == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(param)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive number", name)
	}
	return n, nil
}

// parseFilterTime accepts YYYY-MM-DD, RFC3339, and RFC3339 with milliseconds.
func parseFilterTime(str string) (t time.Time, dateOnly bool, err error) {
	if t, err := time.Parse(time.DateOnly, str); err == nil {
		return t, true, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z07:00"} {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("cannot parse %q as a date or datetime", str)
}
