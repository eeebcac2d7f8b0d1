package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/grading"
)

type gradingApi struct {
	svc *grading.Service
}

// registerGradingAPI mounts the grading endpoints. Request payloads are validated by the service.
func registerGradingAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *grading.Service) {
	api := gradingApi{svc: svc}
	teacher := classTeacherMiddleware(svc)

	cg := g.Group("/classes/:classID", jwt)
	cg.GET("/categories", api.getCategories, teacher)
	cg.PUT("/categories", api.saveCategories, teacher)
	cg.POST("/recalculate", api.recalculateClass, teacher)
	cg.POST("/scores", api.recordScore, teacher)
	cg.GET("/grades", api.listGrades, teacher)
	cg.POST("/curve", api.applyCurve, teacher)
	cg.GET("/orphaned-scores", api.listOrphanedScores, teacher)

	sg := cg.Group("/students/:studentID")
	sg.GET("/grades", api.getStudentGrades, studentOrTeacherMiddleware(svc))
	sg.POST("/recalculate", api.recalculateStudent, teacher)
	sg.PUT("/extra-credit", api.setExtraCredit, teacher)
}

// Handlers

func (api *gradingApi) getCategories(ctx echo.Context) error {
	set, err := api.svc.GetCategorySet(ctx.Request().Context(), ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "getting category set")
	}
	return ctx.JSON(http.StatusOK, set)
}

func (api *gradingApi) saveCategories(ctx echo.Context) error {
	var data grading.SaveCategories
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveCategories")
	}
	if data.Categories == nil {
		data.Categories = []grading.NewCategory{}
	}

	cats, err := api.svc.SaveGradeCategories(ctx.Request().Context(), ctx.Param("classID"), data.Categories)
	if err != nil {
		return errors.Wrap(err, "saving grade categories")
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *gradingApi) recalculateClass(ctx echo.Context) error {
	report, err := api.svc.RecalculateClass(ctx.Request().Context(), ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "recalculating class")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *gradingApi) recalculateStudent(ctx echo.Context) error {
	grades, err := api.svc.RecalculateStudentGrades(ctx.Request().Context(), ctx.Param("studentID"), ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "recalculating student grades")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradingApi) recordScore(ctx echo.Context) error {
	var data grading.NewScore
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScore")
	}
	data.ClassID = ctx.Param("classID")

	grades, err := api.svc.RecordScore(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording score")
	}
	return ctx.JSON(http.StatusCreated, grades)
}

func (api *gradingApi) setExtraCredit(ctx echo.Context) error {
	var data grading.NewExtraCredit
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExtraCredit")
	}

	grades, err := api.svc.SetExtraCredit(ctx.Request().Context(), ctx.Param("classID"), ctx.Param("studentID"), data)
	if err != nil {
		return errors.Wrap(err, "setting extra credit")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradingApi) getStudentGrades(ctx echo.Context) error {
	grades, err := api.svc.GetStudentGrades(ctx.Request().Context(), ctx.Param("studentID"), ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "getting student grades")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradingApi) listGrades(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	grades, err := api.svc.ListClassGrades(ctx.Request().Context(), ctx.Param("classID"), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing class grades")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradingApi) applyCurve(ctx echo.Context) error {
	var data grading.CurveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CurveRequest")
	}

	classID := ctx.Param("classID")
	if err := api.svc.ApplyCurve(ctx.Request().Context(), classID, data.Amount); err != nil {
		return errors.Wrap(err, "applying curve")
	}

	grades, err := api.svc.ListClassGrades(ctx.Request().Context(), classID, nil)
	if err != nil {
		return errors.Wrap(err, "listing class grades")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradingApi) listOrphanedScores(ctx echo.Context) error {
	scores, err := api.svc.ListOrphanedScores(ctx.Request().Context(), ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "listing orphaned scores")
	}
	return ctx.JSON(http.StatusOK, scores)
}
