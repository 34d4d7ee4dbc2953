package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/event"
)

type attendanceApi struct {
	svc *attendance.Service
}

func registerAttendanceAPI(g *echo.Group, svc *attendance.Service) {
	api := attendanceApi{svc: svc}

	ag := g.Group("/attendance")
	ag.POST("/sync", api.sync)
	ag.GET("/events/:id/blocks/:blockID", api.blockSummary)
	ag.GET("/events/:id/summary", api.eventSummary)
	ag.GET("/events/:id/students/:studentID", api.studentSummary)
	ag.GET("/students/:studentID/schedule", api.studentSchedule)
}

// Handlers

func (api *attendanceApi) sync(ctx echo.Context) error {
	var data struct {
		Records []attendance.SyncRecord `json:"records"`
	}
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding sync records")
	}
	if len(data.Records) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "records", Error: "this field is required"})
	}

	res, err := api.svc.Sync(ctx.Request().Context(), data.Records)
	if err != nil {
		return errors.Wrap(err, "syncing attendance")
	}

	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) blockSummary(ctx echo.Context) error {
	eventID, err := intPathParam(ctx, "id")
	if err != nil {
		return err
	}
	blockID, err := intPathParam(ctx, "blockID")
	if err != nil {
		return err
	}

	filter := ctx.QueryParam("filter")
	if filter == "" {
		filter = attendance.FilterAll
	}

	summary, err := api.svc.BlockSummary(ctx.Request().Context(), eventID, blockID, filter)
	if err != nil {
		return errors.Wrap(err, "getting block summary")
	}

	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) eventSummary(ctx echo.Context) error {
	eventID, err := intPathParam(ctx, "id")
	if err != nil {
		return err
	}

	departmentID := intQueryParam(ctx, "department_id")
	yearLevelID := intQueryParam(ctx, "year_level_id")

	summary, err := api.svc.EventSummary(ctx.Request().Context(), eventID, departmentID, yearLevelID)
	if err != nil {
		return errors.Wrap(err, "getting event summary")
	}

	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) studentSummary(ctx echo.Context) error {
	eventID, err := intPathParam(ctx, "id")
	if err != nil {
		return err
	}

	summary, err := api.svc.StudentSummary(ctx.Request().Context(), eventID, ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "getting student summary")
	}

	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) studentSchedule(ctx echo.Context) error {
	onDate := time.Now().UTC()
	if raw := ctx.QueryParam("date"); raw != "" {
		var err error
		if onDate, err = time.Parse(event.DateLayout, raw); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "invalid date; expected YYYY-MM-DD"})
		}
	}

	entries, err := api.svc.StudentSchedule(ctx.Request().Context(), ctx.Param("studentID"), onDate)
	if err != nil {
		return errors.Wrap(err, "getting student schedule")
	}

	return ctx.JSON(http.StatusOK, entries)
}

func intQueryParam(ctx echo.Context, name string) int {
	val, _ := strconv.Atoi(ctx.QueryParam(name))
	return val
}
