package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	failOn   string

	calls []string
}

func (f *fakeExec) record(name string) error {
	f.calls = append(f.calls, name)
	if name == f.failOn {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeExec) isLoggedIn() bool                  { return f.loggedIn }
func (f *fakeExec) Register(context.Context) error    { return f.record("register") }
func (f *fakeExec) Verify(context.Context) error      { f.loggedIn = true; return f.record("verify") }
func (f *fakeExec) Login(context.Context) error       { f.loggedIn = true; return f.record("login") }
func (f *fakeExec) AddEmail(context.Context) error    { return f.record("add-email") }
func (f *fakeExec) VerifyEmail(context.Context) error { return f.record("verify-email") }
func (f *fakeExec) Emails(context.Context) error      { return f.record("emails") }
func (f *fakeExec) Track(context.Context) error       { return f.record("track") }
func (f *fakeExec) Certify(context.Context) error     { return f.record("certify") }
func (f *fakeExec) Assert(context.Context) error      { return f.record("assert") }
func (f *fakeExec) VerifyAssertion(context.Context) error {
	return f.record("verify-assertion")
}
func (f *fakeExec) Remove(context.Context) error { return f.record("remove") }
func (f *fakeExec) Logout(context.Context) error { f.loggedIn = false; return f.record("logout") }

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	out := captureOutput(t)

	input := strings.Join([]string{
		"help",
		"assert",
		"login",
		"help",
		"emails",
		"certify",
		"assert",
		"",
		"foobar",
		"logout",
		"exit",
		"register",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, rdr(input))

	assert.Equal(t, []string{"login", "emails", "certify", "assert", "logout"}, exec.calls)
	assert.Contains(t, *out, "Please log in first")
	assert.Contains(t, *out, "Unknown command: foobar")
	assert.Contains(t, *out, "Bye!")
	assert.Contains(t, *out, "idk status>")
}

func TestRunREPL_ErrorsDoNotStopTheLoop(t *testing.T) {
	out := captureOutput(t)

	exec := &fakeExec{failOn: "register"}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("register\ntrack\nquit\n"))

	assert.Equal(t, []string{"register", "track"}, exec.calls)
	assert.Contains(t, *out, "Error: boom")
}

func TestRunREPL_EOFWithoutNewline(t *testing.T) {
	captureOutput(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("verify"))

	assert.Equal(t, []string{"verify"}, exec.calls)
}
