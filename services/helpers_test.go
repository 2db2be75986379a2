package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/croftbase/member-console/models"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	raw, hash, err := generateToken()
	require.NoError(t, err)
	require.Len(t, raw, 43)
	require.NotContains(t, raw, "+")
	require.NotContains(t, raw, "/")
	require.NotContains(t, raw, "=")
	require.Len(t, hash, 64)
	require.Equal(t, hashToken(raw), hash)

	other, _, err := generateToken()
	require.NoError(t, err)
	require.NotEqual(t, raw, other)
}

func TestNewVerification(t *testing.T) {
	t.Parallel()

	payload := models.InvitationPayload{Email: "casey@example.com", Role: models.RoleMember}
	verification, raw, err := newVerification(models.ScopeInvitation, "Casey@Example.COM", payload, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, verification.ID)
	require.Equal(t, "invitation:casey@example.com", verification.Identifier)
	require.Equal(t, hashToken(raw), verification.TokenHash)
	require.WithinDuration(t, time.Now().Add(time.Hour), verification.ExpiresAt, time.Minute)

	var decoded models.InvitationPayload
	require.NoError(t, json.Unmarshal(verification.Value, &decoded))
	require.Equal(t, "casey@example.com", decoded.Email)
}

func TestNewID(t *testing.T) {
	t.Parallel()

	id := newID()
	require.Len(t, id, 26)
	require.NotEqual(t, id, newID())
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Riley@Example.COM", want: "riley@example.com"},
		{in: "  riley@example.com  ", want: "riley@example.com"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "not an email", wantErr: true},
		{in: "missing-at.example.com", wantErr: true},
	}
	for _, tc := range tests {
		got, err := normalizeEmail(tc.in)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrEmailRequired, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestImageExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        string
		wantErr     bool
	}{
		{contentType: "image/jpeg", want: ".jpg"},
		{contentType: "image/jpg", want: ".jpg"},
		{contentType: "image/png", want: ".png"},
		{contentType: "image/gif", want: ".gif"},
		{contentType: "image/webp", want: ".webp"},
		{contentType: "image/svg+xml", wantErr: true},
		{contentType: "application/pdf", wantErr: true},
		{contentType: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := imageExtension(tc.contentType)
		if tc.wantErr {
			require.Error(t, err, "content type %q", tc.contentType)
			continue
		}
		require.NoError(t, err, "content type %q", tc.contentType)
		require.Equal(t, tc.want, got)
	}
}

func TestDerefString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", derefString(nil))
	value := "hello"
	require.Equal(t, "hello", derefString(&value))
}
