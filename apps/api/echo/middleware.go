package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/grading"
)

const contextClassKey = "class"

// classTeacherMiddleware lets through admins and the teacher of the class in the `:classID` path param.
// The class is stored in the context.
func classTeacherMiddleware(svc *grading.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			class, err := svc.GetClass(ctx.Request().Context(), ctx.Param("classID"))
			if err != nil {
				if errors.Cause(err) == grading.ErrClassNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "getting class")
			}
			if claims.IsAdmin || (claims.IsTeacher && claims.Subject == class.TeacherID) {
				ctx.Set(contextClassKey, class)
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// studentOrTeacherMiddleware lets a student through to their own `:studentID` resources,
// and falls back to classTeacherMiddleware for everyone else.
func studentOrTeacherMiddleware(svc *grading.Service) echo.MiddlewareFunc {
	teacher := classTeacherMiddleware(svc)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		asTeacher := teacher(next)
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsStudent && claims.Subject == ctx.Param("studentID") {
				return next(ctx)
			}
			return asTeacher(ctx)
		}
	}
}
