package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/user"
)

const contextObjectKey = "object"

var errObjNotFoundInCtx = errors.New("object not found in echo.Context")

// adminMiddleware denies non-admin sessions: 403 for API clients,
// a redirect to defaultPath for browsers.
func adminMiddleware(defaultPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return err
			}
			if sess.IsAdmin() {
				return next(ctx)
			}
			if wantsHTML(ctx.Request()) {
				return ctx.Redirect(http.StatusSeeOther, defaultPath)
			}
			return errHttpForbidden
		}
	}
}

// profileMiddleware loads the institution profile once for the request.
func profileMiddleware(svc *setting.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			p, err := svc.Profile(req.Context())
			if err != nil {
				return errors.Wrap(err, "loading profile")
			}
			ctx.SetRequest(req.WithContext(setting.ContextWithProfile(req.Context(), p)))
			return next(ctx)
		}
	}
}

// ctxUserOrAdminMiddleware loads the user of the `:id` param when it is the session user
// or the session is an admin's. Other users are reported as not found.
func ctxUserOrAdminMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return err
			}

			if ctx.Param("id") == sess.UserID || sess.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set(contextObjectKey, usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

// objectMiddleware loads the record named by the `:id` param with get and stores it in the context.
func objectMiddleware(get func(echo.Context, string) (interface{}, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			obj, err := get(ctx, ctx.Param("id"))
			if err != nil {
				return err
			}
			ctx.Set(contextObjectKey, obj)
			return next(ctx)
		}
	}
}
