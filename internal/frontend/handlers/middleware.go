package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/auth"
	"github.com/cory-johannsen/derby/internal/game/errs"
)

const callerContextKey = "caller"

// Session returns middleware that resolves the bearer token, or the named
// session cookie when no Authorization header is sent, into an auth.Caller.
func Session(v *auth.Verifier, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				if ck, err := c.Cookie(cookieName); err == nil {
					token = ck.Value
				}
			}
			caller, err := v.Resolve(token)
			if err != nil {
				return err
			}
			c.Set(callerContextKey, caller)
			c.SetRequest(c.Request().WithContext(auth.WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}

func callerOf(c echo.Context) (auth.Caller, error) {
	caller, ok := c.Get(callerContextKey).(auth.Caller)
	if !ok {
		return auth.Caller{}, errs.New(errs.Unauthenticated, "login required")
	}
	return caller, nil
}

// RequestLogger logs one line per request at a level chosen by status.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogError:    true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Duration("latency", v.Latency),
			}
			if caller, ok := c.Get(callerContextKey).(auth.Caller); ok {
				fields = append(fields, zap.String("user_id", caller.UserID))
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("http request", fields...)
			case v.Status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
			return nil
		},
	})
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// StatusFor maps a service error kind to an HTTP status.
func StatusFor(kind errs.Kind) int {
	switch kind {
	case errs.InvalidWager, errs.InsufficientPoints, errs.PolicyViolation:
		return http.StatusBadRequest
	case errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.TooEarly:
		return http.StatusConflict
	case errs.StorageFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders every error as {"ok": false, "error": ..., "kind": ...}.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		body := errorBody{Error: http.StatusText(status)}

		var svcErr *errs.Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &svcErr):
			status = StatusFor(svcErr.Kind)
			body = errorBody{Error: svcErr.Message, Kind: string(svcErr.Kind)}
		case errors.As(err, &httpErr):
			status = httpErr.Code
			body.Error = http.StatusText(status)
			if msg, ok := httpErr.Message.(string); ok {
				body.Error = msg
			}
		default:
			logger.Error("unhandled error", zap.Error(err), zap.String("uri", c.Request().RequestURI))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Warn("writing error response", zap.Error(err))
		}
	}
}
