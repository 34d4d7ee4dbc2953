package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/period"
)

const rosterFileField = "roster"

type periodApi struct {
	svc *period.Service
}

func registerPeriodAPI(g *echo.Group, svc *period.Service) {
	api := periodApi{svc: svc}

	pg := g.Group("/periods")
	pg.GET("/current", api.current)
	pg.POST("/roster-sync", api.rosterSync)
	pg.POST("/rollover", api.rollover)
}

// Handlers

func (api *periodApi) current(ctx echo.Context) error {
	prd, err := api.svc.Current(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting current period")
	}
	return ctx.JSON(http.StatusOK, prd)
}

func (api *periodApi) rosterSync(ctx echo.Context) error {
	src, done, err := rosterSource(ctx)
	if err != nil {
		return err
	}
	defer done()

	stats, err := api.svc.RosterSync(ctx.Request().Context(), src)
	if err != nil {
		return errors.Wrap(err, "syncing roster")
	}

	return ctx.JSON(http.StatusOK, stats)
}

func (api *periodApi) rollover(ctx echo.Context) error {
	src, done, err := rosterSource(ctx)
	if err != nil {
		return err
	}
	defer done()

	stats, err := api.svc.Rollover(ctx.Request().Context(), src)
	if err != nil {
		return errors.Wrap(err, "rolling over period")
	}

	return ctx.JSON(http.StatusOK, stats)
}

// rosterSource opens the uploaded roster CSV; the returned func closes the
// underlying file and must be deferred by the caller.
func rosterSource(ctx echo.Context) (period.RosterSource, func(), error) {
	fileHdr, err := ctx.FormFile(rosterFileField)
	if err != nil {
		return nil, nil, core.NewValidationError(nil, core.FieldError{Field: rosterFileField, Error: "a roster CSV file is required"})
	}

	file, err := fileHdr.Open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening roster file")
	}

	src, err := period.NewCSVSource(file)
	if err != nil {
		_ = file.Close()
		return nil, nil, core.NewValidationError(errors.Wrap(err, "invalid roster file"))
	}
	return src, func() { _ = file.Close() }, nil
}
