package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/schedule"
)

func bindAndValidate(ctx echo.Context, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrap(err, "binding request body")
	}
	return core.Validate.Struct(data)
}

func (r eventUpdateRequest) toEventUpdate() (calendar.EventUpdate, error) {
	var upd calendar.EventUpdate
	if r.NewDate != nil {
		t, err := time.Parse(time.RFC3339, *r.NewDate)
		if err != nil {
			return upd, echo.NewHTTPError(http.StatusBadRequest, "new_date must be RFC 3339")
		}
		upd.NewDate = &t
	}
	if r.NewStatus != nil {
		status := schedule.ItemStatus(*r.NewStatus)
		if !status.IsValid() {
			return upd, echo.NewHTTPError(http.StatusBadRequest, "invalid new_status")
		}
		upd.NewStatus = &status
	}
	return upd, nil
}
