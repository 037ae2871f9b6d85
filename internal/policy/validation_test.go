package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashahealth/mediwagon/internal/gateway"
)

func validRegistration() Registration {
	return Registration{
		Profile: gateway.Profile{
			Name:     "Gayathri",
			Email:    "gayathri@example.com",
			Password: "secret123",
			Age:      29,
			Address:  "Bengaluru",
			Gender:   "female",
			Phone:    "9876543210",
		},
		ConfirmPassword: "secret123",
	}
}

func TestValidateRegistrationAccepts(t *testing.T) {
	assert.NoError(t, ValidateRegistration(validRegistration()))
}

func TestValidateRegistrationFieldMessages(t *testing.T) {
	r := validRegistration()
	r.Profile.Name = "  "
	r.Profile.Email = "not-an-email"
	r.Profile.Phone = "12345"
	r.Profile.Age = 9
	r.Profile.Password = "short"
	r.ConfirmPassword = "different"

	err := ValidateRegistration(r)
	require.Error(t, err)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "Full name is required.", vErr.Fields["name"])
	assert.Equal(t, "Invalid email address.", vErr.Fields["email"])
	assert.Equal(t, "Phone must be 10 to 15 digits.", vErr.Fields["phone"])
	assert.Contains(t, vErr.Fields["age"], "13")
	assert.Equal(t, "Password must be at least 8 characters.", vErr.Fields["password"])
	assert.Equal(t, "Passwords do not match.", vErr.Fields["confirm"])
	assert.Contains(t, err.Error(), "confirm: Passwords do not match.")
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials(gateway.Credentials{Email: "g@example.com", Password: "secret123"}))

	err := ValidateCredentials(gateway.Credentials{})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "Email is required.", vErr.Fields["email"])
	assert.Equal(t, "Password is required.", vErr.Fields["password"])
}
