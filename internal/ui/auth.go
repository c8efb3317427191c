package ui

import (
	"context"

	"github.com/splitsmart/splitsmart-go/internal/domain"
)

// runAuth is the unauthenticated flow: login or register.
func (u *UI) runAuth(ctx context.Context) error {
	for {
		u.printf("\n[1] Sign in  [2] Create account  [q] Quit\n")
		choice, ok := u.prompt(">")
		if !ok {
			return errQuit
		}

		switch choice {
		case "1":
			if err := u.login(ctx); err != nil {
				return err
			}
			if u.session.Authenticated() {
				return nil
			}
		case "2":
			u.register(ctx)
		case "q":
			return errQuit
		}
	}
}

func (u *UI) login(ctx context.Context) error {
	email, ok := u.prompt("Email:")
	if !ok {
		return errQuit
	}
	password, ok := u.prompt("Password:")
	if !ok {
		return errQuit
	}
	if email == "" || password == "" {
		u.notice(&domain.ErrValidation{Field: "credentials", Message: "Email and password are required."})
		return nil
	}

	user, err := u.session.Login(ctx, domain.Credentials{Username: email, Password: password})
	if err != nil {
		u.notice(err)
		return nil
	}
	if user != nil {
		u.printf("Signed in as %s.\n", user.FullName)
	}
	return nil
}

func (u *UI) register(ctx context.Context) {
	email, ok := u.prompt("Email:")
	if !ok {
		return
	}
	fullName, ok := u.prompt("Full name:")
	if !ok {
		return
	}
	password, ok := u.prompt("Password:")
	if !ok {
		return
	}
	if email == "" || fullName == "" || password == "" {
		u.notice(&domain.ErrValidation{Field: "registration", Message: "All fields are required."})
		return
	}

	user, err := u.session.Register(ctx, &domain.RegisterRequest{
		Email:    email,
		FullName: fullName,
		Password: password,
	})
	if err != nil {
		u.notice(err)
		return
	}
	u.printf("Account created for %s. You can sign in now.\n", user.Email)
}
