package main

import (
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/ashahealth/mediwagon/internal/policy"
)

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// promptRegistration and promptPassword are test hooks for replacing the
// interactive forms.
var (
	promptRegistration = defaultPromptRegistration
	promptPassword     = defaultPromptPassword
)

// fieldCheck validates the whole form and reports only the named field, so
// each input shows its own message while the rest is still blank.
func fieldCheck(reg *policy.Registration, key string, set func(string)) func(string) error {
	return func(s string) error {
		set(s)
		var verr *policy.ValidationError
		if errors.As(policy.ValidateRegistration(*reg), &verr) {
			if msg, ok := verr.Fields[key]; ok {
				return errors.New(msg)
			}
		}
		return nil
	}
}

func defaultPromptRegistration(in io.Reader, out io.Writer, reg *policy.Registration) error {
	p := &reg.Profile
	age := ""
	if p.Age > 0 {
		age = strconv.Itoa(p.Age)
	}
	if p.Gender == "" {
		p.Gender = "Prefer not to say"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Full name").Value(&p.Name).
				Validate(fieldCheck(reg, "name", func(s string) { p.Name = s })),
			huh.NewInput().Title("Email").Placeholder("you@example.com").Value(&p.Email).
				Validate(fieldCheck(reg, "email", func(s string) { p.Email = s })),
			huh.NewInput().Title("Phone").Description("10 to 15 digits").Value(&p.Phone).
				Validate(fieldCheck(reg, "phone", func(s string) { p.Phone = s })),
			huh.NewInput().Title("Age").Value(&age).
				Validate(fieldCheck(reg, "age", func(s string) { p.Age, _ = strconv.Atoi(strings.TrimSpace(s)) })),
		),
		huh.NewGroup(
			huh.NewInput().Title("Address").Value(&p.Address),
			huh.NewSelect[string]().
				Title("Gender").
				Options(huh.NewOptions("Female", "Male", "Other", "Prefer not to say")...).
				Value(&p.Gender),
		),
		huh.NewGroup(
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&p.Password).
				Validate(fieldCheck(reg, "password", func(s string) { p.Password = s })),
			huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&reg.ConfirmPassword).
				Validate(fieldCheck(reg, "confirm", func(s string) { reg.ConfirmPassword = s })),
		),
	).
		WithInput(in).
		WithOutput(out)

	if !isTerminal(in) {
		form = form.WithAccessible(true)
	}
	if err := form.Run(); err != nil {
		return err
	}
	p.Age, _ = strconv.Atoi(strings.TrimSpace(age))
	return nil
}

func defaultPromptPassword(in io.Reader, out io.Writer) (string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password),
		),
	).WithInput(in).WithOutput(out)
	if !isTerminal(in) {
		form = form.WithAccessible(true)
	}
	if err := form.Run(); err != nil {
		return "", err
	}
	return password, nil
}

// readSecret reads a single line, for --password-stdin.
func readSecret(in io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(in, 4096))
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	return strings.TrimRight(line, "\r"), nil
}
