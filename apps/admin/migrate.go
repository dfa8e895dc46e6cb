package main

import (
	"github.com/trezcool/risiti/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, cli.logger, args[0], args[1:]...)
}
