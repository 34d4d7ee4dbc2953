package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/mahudhurio/core"
	broadcastsvc "github.com/trezcool/mahudhurio/services/broadcast"
)

type streamApi struct {
	hub *broadcastsvc.Hub
}

func registerStreamAPI(g *echo.Group, hub *broadcastsvc.Hub) {
	api := streamApi{hub: hub}

	sg := g.Group("/stream")
	sg.GET("/events", api.allEvents)
	sg.GET("/blocks/:blockID", api.blockEvents)
}

// Handlers

func (api *streamApi) allEvents(ctx echo.Context) error {
	return api.stream(ctx, core.AllEventsChannel)
}

func (api *streamApi) blockEvents(ctx echo.Context) error {
	blockID, err := intPathParam(ctx, "blockID")
	if err != nil {
		return err
	}
	return api.stream(ctx, core.BlockChannel(blockID))
}

// stream pushes hub messages to the client as Server-Sent Events until the
// client disconnects.
func (api *streamApi) stream(ctx echo.Context, channel string) error {
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	msgs, cancel := api.hub.Subscribe(channel)
	defer cancel()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if _, err = fmt.Fprintf(res, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Event, payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
