package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core/user"
)

// addUser creates an active user, or updates the role and password of the user with this email.
func (cli *commandLine) addUser(name, email, role, pwd string) error {
	ctx := context.Background()

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch errors.Cause(err) {
	case nil:
		active := true
		uu := user.UpdateUser{Name: name, Role: role, IsActive: &active, Password: pwd, PasswordConfirm: pwd}
		if err = uu.Validate(ctx, usr, cli.validate, cli.usrSvc); err != nil {
			return err
		}
		usr, err = cli.usrSvc.Update(ctx, usr, uu)
		if err != nil {
			return errors.Wrap(err, "updating user")
		}
		cli.logger.Info("user updated: " + usr.Email)
		return nil

	case user.ErrNotFound:
		nu := user.NewUser{Name: name, Email: email, Role: role, Password: pwd, PasswordConfirm: pwd}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return err
		}
		usr, err = cli.usrSvc.Create(ctx, nu)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		cli.logger.Info("user created: " + usr.Email)
		return nil

	default:
		return errors.Wrap(err, "finding user")
	}
}
