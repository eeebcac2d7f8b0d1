package main

import (
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	appfs "github.com/trezcool/gradebook/fs"
	"github.com/trezcool/gradebook/storage/database"
)

var gooseRunFunc = goose.Run // mockable

func (cli *commandLine) migrate(args []string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect(database.Dialect(cli.conf.Database.Engine)); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	return gooseRunFunc(args[0], cli.db.DB, "migrations", args[1:]...)
}
