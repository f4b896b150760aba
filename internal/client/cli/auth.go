package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register stages a new account and starts polling for its verification.
func (a *App) Register(ctx context.Context) error {
	email, err := getNonEmpty(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if err := a.identity.Register(ctx, email, cliSite, a.pollCallbacks("registration")); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Verification sent to %s. Run 'verify' with the token.\n", email)
	return nil
}

// Verify completes registration with a token and the new account's
// password.
func (a *App) Verify(ctx context.Context) error {
	token, err := getNonEmpty(a.reader, "Enter verification token", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	email, err := a.identity.CompleteRegistration(ctx, token, password)
	if err != nil {
		return err
	}

	a.setUser(email)
	fmt.Fprintf(a.out, "Welcome, %s!\n", email)
	return nil
}

// Login prompts for credentials, authenticates and unlocks the local key
// vault.
func (a *App) Login(ctx context.Context) error {
	email, err := getNonEmpty(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.identity.Login(ctx, email, password); err != nil {
		return err
	}

	a.setUser(email)
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

// Logout ends the session and locks the vault. Cached identities stay on
// disk for the next login.
func (a *App) Logout(ctx context.Context) error {
	err := a.identity.Logout(ctx)
	a.setUser("")
	return err
}
