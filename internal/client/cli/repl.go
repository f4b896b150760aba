package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Verify(ctx context.Context) error
	Login(ctx context.Context) error
	AddEmail(ctx context.Context) error
	VerifyEmail(ctx context.Context) error
	Emails(ctx context.Context) error
	Track(ctx context.Context) error
	Certify(ctx context.Context) error
	Assert(ctx context.Context) error
	VerifyAssertion(ctx context.Context) error
	Remove(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads commands line by line from reader and dispatches them to a.
// The loop exits on EOF or when the user types "exit" or "quit".
//
//	Not logged in:
//	  - register          stage a new account
//	  - verify            finish registration with the emailed token
//	  - login             authenticate
//	  - track             look up whether an address is primary or secondary
//	  - verify-assertion  ask the verifier about an assertion
//
//	Logged in, additionally:
//	  - add-email         stage another address
//	  - verify-email      finish adding an address
//	  - emails            list the account's addresses
//	  - certify           replace an address's certificate
//	  - assert            produce an assertion for an audience
//	  - remove            detach an address
//	  - logout            end the session
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	commands := map[string]func(context.Context) error{
		"register":         a.Register,
		"verify":           a.Verify,
		"login":            a.Login,
		"track":            a.Track,
		"verify-assertion": a.VerifyAssertion,
	}
	authenticated := map[string]func(context.Context) error{
		"add-email":    a.AddEmail,
		"verify-email": a.VerifyEmail,
		"emails":       a.Emails,
		"certify":      a.Certify,
		"assert":       a.Assert,
		"remove":       a.Remove,
		"logout":       a.Logout,
	}

	for {
		printlnFn(fmt.Sprintf("idk %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		if fn, ok := authenticated[cmd]; ok {
			if !a.isLoggedIn() {
				printlnFn("Please log in first")
				continue
			}
			report(fn(ctx))
			continue
		}
		if fn, ok := commands[cmd]; ok {
			report(fn(ctx))
			continue
		}

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: add-email, verify-email, emails, track, certify, assert, verify-assertion, remove, logout, exit")
			} else {
				printlnFn("Available commands: register, verify, login, track, verify-assertion, exit")
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func report(err error) {
	if err != nil {
		printlnFn("Error:", err)
	}
}
