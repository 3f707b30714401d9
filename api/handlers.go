package api

import (
	"context"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/board"
	"taskboard/domain"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, b Board, sess Session, notes Notifications, hub *Hub, logger *log.Logger) {
	e.GET("/", oauthCallback(b, sess, notes, logger))
	e.GET("/login", login(sess))
	e.GET("/healthz", healthz())

	g := e.Group("/api", requireSession(sess))
	g.GET("/board", getBoard(b))
	g.POST("/board/reload", postReload(b, logger))
	g.GET("/me", getMe(sess, logger))
	g.POST("/signout", postSignOut(sess, logger))
	g.GET("/notifications", getNotifications(notes))
	g.DELETE("/notifications/:id", deleteNotification(notes))
	g.GET("/stream", hub.ServeSSE())

	g.POST("/lists/:listId/tasks", postTask(b))
	g.PUT("/lists/:listId/tasks/:id", putTask(b))
	g.DELETE("/lists/:listId/tasks/:id", deleteTask(b))
	g.POST("/lists/:listId/tasks/:id/move", postMove(b))
	g.POST("/lists/:listId/tasks/:id/reorder", postReorder(b))
	g.POST("/lists/:listId/tasks/:id/toggle", postToggle(b))
}

// requireSession rejects API calls until sign-in has completed.
func requireSession(sess Session) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !sess.IsAuthenticated() {
				return c.String(http.StatusUnauthorized, "not signed in")
			}
			return next(c)
		}
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func login(sess Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Redirect(http.StatusFound, sess.AuthorizationURL())
	}
}

type statusResponse struct {
	Authenticated bool `json:"authenticated"`
}

// oauthCallback handles the provider redirect back to the root URL. Without
// callback parameters it reports sign-in status. After handling a callback it
// redirects to the bare root so the code never survives in the address.
func oauthCallback(b Board, sess Session, notes Notifications, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if authErr := c.QueryParam("error"); authErr != "" {
			logger.WithField("error", authErr).Warn("authorization denied")
			notes.Notify("Error signing in", board.KindError)
			return c.Redirect(http.StatusFound, "/")
		}
		code := c.QueryParam("code")
		if code == "" {
			return c.JSON(http.StatusOK, statusResponse{Authenticated: sess.IsAuthenticated()})
		}
		if !sess.VerifyState(c.QueryParam("state")) {
			return c.String(http.StatusBadRequest, "state mismatch")
		}
		if _, err := sess.CompleteAuthorization(ctx, code); err != nil {
			logger.WithError(err).Error("complete authorization")
			notes.Notify("Error signing in", board.KindError)
			return c.Redirect(http.StatusFound, "/")
		}
		go func() {
			// The request context dies with the redirect; the initial
			// load runs on its own.
			if err := b.LoadAll(context.Background()); err != nil {
				logger.WithError(err).Error("initial board load")
			}
		}()
		return c.Redirect(http.StatusFound, "/")
	}
}

func getBoard(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, b.Snapshot())
	}
}

func postReload(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := b.LoadAll(c.Request().Context()); err != nil {
			logger.WithError(err).Error("reload board")
			return c.String(http.StatusBadGateway, err.Error())
		}
		return c.JSON(http.StatusOK, b.Snapshot())
	}
}

func getMe(sess Session, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := sess.Profile(c.Request().Context())
		if err != nil {
			logger.WithError(err).Warn("load profile")
			return c.String(http.StatusBadGateway, err.Error())
		}
		return c.JSON(http.StatusOK, user)
	}
}

func postSignOut(sess Session, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := sess.SignOut(c.Request().Context()); err != nil {
			logger.WithError(err).Warn("sign out")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getNotifications(notes Notifications) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, notes.Active())
	}
}

func deleteNotification(notes Notifications) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !notes.Dismiss(c.Param("id")) {
			return c.NoContent(http.StatusNotFound)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type taskRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes"`
	Due   string `json:"due"`
}

type moveRequest struct {
	ToListID string `json:"toListId"`
}

type reorderRequest struct {
	NewIndex int `json:"newIndex"`
}

func decodeBody(c echo.Context, into any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

func postTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		data := domain.TaskData{Title: req.Title, Notes: req.Notes, Due: req.Due}
		if err := b.Save(nil, c.Param("listId"), data); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusAccepted, b.Snapshot())
	}
}

func putTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, ok := b.FindTask(c.Param("id"))
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		data := domain.TaskData{Title: req.Title, Notes: req.Notes, Due: req.Due}
		if err := b.Save(&task, task.TaskListID, data); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusAccepted, b.Snapshot())
	}
}

func deleteTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok := b.FindTask(c.Param("id"))
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		b.Delete(task)
		return c.JSON(http.StatusAccepted, b.Snapshot())
	}
}

func postMove(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveRequest
		if err := decodeBody(c, &req); err != nil || req.ToListID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, ok := b.FindTask(c.Param("id"))
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		b.Move(task.ID, c.Param("listId"), req.ToListID, task.Data())
		return c.JSON(http.StatusAccepted, b.Snapshot())
	}
}

func postReorder(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req reorderRequest
		if err := decodeBody(c, &req); err != nil || req.NewIndex < 0 {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, ok := b.FindTask(c.Param("id"))
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		b.Reorder(task.ID, c.Param("listId"), req.NewIndex)
		return c.JSON(http.StatusAccepted, b.Snapshot())
	}
}

func postToggle(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok := b.FindTask(c.Param("id"))
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		b.ToggleComplete(task)
		return c.JSON(http.StatusAccepted, b.Snapshot())
	}
}
