package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/event"
)

type eventApi struct {
	svc *event.Service
}

func registerEventAPI(g *echo.Group, svc *event.Service) {
	api := eventApi{svc: svc}

	eg := g.Group("/events")
	eg.POST("", api.create)
	eg.GET("", api.query)

	dg := eg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/approve", api.approve)
}

// Handlers

func (api *eventApi) create(ctx echo.Context) error {
	var data event.EventInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EventInput")
	}

	detail, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}

	return ctx.JSON(http.StatusCreated, detail)
}

func (api *eventApi) query(ctx echo.Context) error {
	var filter event.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	details, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}

	return ctx.JSON(http.StatusOK, details)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	id, err := intPathParam(ctx, "id")
	if err != nil {
		return err
	}

	detail, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting event")
	}

	return ctx.JSON(http.StatusOK, detail)
}

func (api *eventApi) update(ctx echo.Context) error {
	id, err := intPathParam(ctx, "id")
	if err != nil {
		return err
	}

	var data event.EventInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EventInput")
	}

	detail, err := api.svc.Edit(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "editing event")
	}

	return ctx.JSON(http.StatusOK, detail)
}

func (api *eventApi) approve(ctx echo.Context) error {
	id, err := intPathParam(ctx, "id")
	if err != nil {
		return err
	}

	var data struct {
		ActorID string `json:"admin_id_number"`
	}
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding approval request")
	}

	detail, err := api.svc.Approve(ctx.Request().Context(), id, data.ActorID)
	if err != nil {
		return errors.Wrap(err, "approving event")
	}

	return ctx.JSON(http.StatusOK, detail)
}

func (api *eventApi) destroy(ctx echo.Context) error {
	id, err := intPathParam(ctx, "id")
	if err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting event")
	}

	return ctx.NoContent(http.StatusNoContent)
}

func intPathParam(ctx echo.Context, name string) (int, error) {
	val, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return val, nil
}
