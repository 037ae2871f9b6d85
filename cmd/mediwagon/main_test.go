package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashahealth/mediwagon/internal/mockbackend"
	"github.com/ashahealth/mediwagon/internal/policy"
)

// testEnv points the CLI at a mock backend and a throwaway identity file.
func testEnv(t *testing.T) *mockbackend.Server {
	t.Helper()
	backend := mockbackend.New(mockbackend.Options{})
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	t.Setenv("MEDIWAGON_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MEDIWAGON_AUTH_URL", ts.URL)
	t.Setenv("MEDIWAGON_AGENT_URL", ts.URL)
	t.Setenv("MEDIWAGON_VOICE_URL", ts.URL)
	t.Setenv("MEDIWAGON_IDENTITY_PATH", filepath.Join(t.TempDir(), "identity.db"))
	t.Setenv("APP_LOG_FORMAT", "text")
	return backend
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func register(t *testing.T) {
	t.Helper()
	out, err := run(t, "s3cretpass\n", "register", "--no-input", "--password-stdin",
		"--name", "Gayathri", "--email", "gayathri@example.com", "--phone", "9876543210", "--age", "29")
	require.NoError(t, err)
	assert.Contains(t, out, "User registered successfully")
}

func TestRootCommandListsSubcommands(t *testing.T) {
	cmd := newRootCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "mock-backend", "register", "login", "logout", "whoami", "chat", "summarize", "remind"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRegisterValidationNeverReachesBackend(t *testing.T) {
	backend := testEnv(t)

	_, err := run(t, "short\n", "register", "--no-input", "--password-stdin",
		"--name", "Gayathri", "--email", "not-an-email", "--phone", "12", "--age", "9")
	require.Error(t, err)
	for _, field := range []string{"email:", "phone:", "age:", "password:"} {
		assert.Contains(t, err.Error(), field)
	}
	assert.Zero(t, backend.Calls("/api/auth/register"))
}

func TestRegisterUsesPromptWhenInteractive(t *testing.T) {
	testEnv(t)
	orig := promptRegistration
	t.Cleanup(func() { promptRegistration = orig })

	var prefilled string
	promptRegistration = func(_ io.Reader, _ io.Writer, reg *policy.Registration) error {
		prefilled = reg.Profile.Name
		reg.Profile.Email = "ravi@example.com"
		reg.Profile.Phone = "9876543210"
		reg.Profile.Age = 40
		reg.Profile.Password = "s3cretpass"
		reg.ConfirmPassword = "s3cretpass"
		return nil
	}

	out, err := run(t, "", "register", "--name", "Ravi")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", prefilled)
	assert.Contains(t, out, "mediwagon login")
}

func TestSignInLifecycle(t *testing.T) {
	testEnv(t)
	register(t)

	out, err := run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	_, err = run(t, "wrongpassword\n", "login", "--email", "gayathri@example.com", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")

	out, err = run(t, "s3cretpass\n", "login", "--email", "gayathri@example.com", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Gayathri.")

	// A fresh process sees the persisted identity.
	out, err = run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Gayathri <gayathri@example.com>")

	out, err = run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	out, err = run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestCommandsRequireSignIn(t *testing.T) {
	testEnv(t)
	for _, args := range [][]string{
		{"chat"},
		{"summarize"},
		{"remind", "--medication", "Paracetamol", "--at", "night"},
	} {
		_, err := run(t, "report", args...)
		require.ErrorIs(t, err, errNotSignedIn, "%v", args)
	}
}

func TestSummarizeRedactsBeforeSending(t *testing.T) {
	backend := testEnv(t)
	register(t)
	_, err := run(t, "s3cretpass\n", "login", "--email", "gayathri@example.com", "--password-stdin")
	require.NoError(t, err)

	out, err := run(t, "Haemoglobin is slightly low. Contact gayathri@example.com for follow-up.", "summarize")
	require.NoError(t, err)
	assert.Contains(t, out, "personal details were redacted")
	assert.Contains(t, out, "In simple terms: Haemoglobin is slightly low.")
	assert.Equal(t, 1, backend.Calls("/api/v1/agents/summarize-report"))

	_, err = run(t, "   ", "summarize")
	require.Error(t, err)
	assert.Equal(t, 1, backend.Calls("/api/v1/agents/summarize-report"))
}

func TestRemindSchedulesForSignedInUser(t *testing.T) {
	testEnv(t)
	register(t)
	_, err := run(t, "s3cretpass\n", "login", "--email", "gayathri@example.com", "--password-stdin")
	require.NoError(t, err)

	out, err := run(t, "", "remind", "--medication", "Paracetamol 500mg", "--at", "after lunch")
	require.NoError(t, err)
	assert.Equal(t, "Reminder for Paracetamol 500mg scheduled at 13:00.\n", out)

	_, err = run(t, "", "remind", "--medication", "Paracetamol 500mg")
	require.Error(t, err)
}

func TestFieldCheckReportsOnlyItsField(t *testing.T) {
	var reg policy.Registration
	check := fieldCheck(&reg, "phone", func(s string) { reg.Profile.Phone = s })

	require.Error(t, check("12"))
	assert.NoError(t, check("9876543210"))
	assert.Equal(t, "9876543210", reg.Profile.Phone)
}

func TestReadSecretTakesFirstLine(t *testing.T) {
	secret, err := readSecret(strings.NewReader("hunter22pw\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "hunter22pw", secret)
}

func TestServeStopsOnCancelAndCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cleaned := make(chan struct{})
	build := func(context.Context) (http.Handler, func() error, error) {
		return http.NotFoundHandler(), func() error { close(cleaned); return nil }, nil
	}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, "127.0.0.1:0", build, time.Second) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup was not called")
	}
}
