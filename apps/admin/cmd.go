package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db   *sqlx.DB
	conf *core.Config
	svc  *grading.Service
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) with the embedded migrations")
	fmt.Println("  recalculate -class CLASS_ID [-student STUDENT_ID] - recalculate the grades of a class or of one student")
	fmt.Println("  curve -class CLASS_ID -amount POINTS - add a curve to every overall grade of a class")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	recalculateCmd := flag.NewFlagSet("recalculate", flag.ExitOnError)
	recalculateClass := recalculateCmd.String("class", "", "The ID of the class.")
	recalculateStudent := recalculateCmd.String("student", "", "The ID of an enrolled student. All students when empty.")

	curveCmd := flag.NewFlagSet("curve", flag.ExitOnError)
	curveClass := curveCmd.String("class", "", "The ID of the class.")
	curveAmount := curveCmd.Float64("amount", 0, fmt.Sprintf("Percentage points, between %g and %g.", grading.MinCurve, grading.MaxCurve))

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "recalculate":
		if err := recalculateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recalculateClass == "" {
			recalculateCmd.Usage()
			return errHelp
		}
		if *recalculateStudent != "" {
			grades, err := cli.svc.RecalculateStudentGrades(ctx, *recalculateStudent, *recalculateClass)
			if err != nil {
				return err
			}
			return cli.print(grades.Overall)
		}
		report, err := cli.svc.RecalculateClass(ctx, *recalculateClass)
		if err != nil {
			return err
		}
		return cli.print(report)
	case "curve":
		if err := curveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *curveClass == "" || *curveAmount == 0 {
			curveCmd.Usage()
			return errHelp
		}
		if err := cli.svc.ApplyCurve(ctx, *curveClass, *curveAmount); err != nil {
			return err
		}
		grades, err := cli.svc.ListClassGrades(ctx, *curveClass, nil)
		if err != nil {
			return err
		}
		return cli.print(grades)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) print(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, string(data))
	return err
}
