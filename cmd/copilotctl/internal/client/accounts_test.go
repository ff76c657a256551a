package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccounts(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []Account
	}{
		{
			name: "wrapped json with managed project",
			data: `{"version":3,"accounts":[{"email":"a@example.com","refreshToken":"rt-a","managedProjectId":"m-1"},{"email":"b@example.com","refreshToken":"rt-b","projectId":"p-2","managedProjectId":"m-2"}]}`,
			want: []Account{
				{Email: "a@example.com", RefreshToken: "rt-a", ProjectID: "m-1"},
				{Email: "b@example.com", RefreshToken: "rt-b", ProjectID: "p-2"},
			},
		},
		{
			name: "bare json list",
			data: `[{"email":" a@example.com ","refreshToken":"rt-a"}]`,
			want: []Account{{Email: "a@example.com", RefreshToken: "rt-a"}},
		},
		{
			name: "yaml",
			data: "accounts:\n  - email: a@example.com\n    refreshToken: rt-a\n    projectId: p-1\n",
			want: []Account{{Email: "a@example.com", RefreshToken: "rt-a", ProjectID: "p-1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAccounts([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAccounts_Invalid(t *testing.T) {
	for name, data := range map[string]string{
		"empty":         "",
		"scalar":        "hello",
		"missing token": `[{"email":"a@example.com"}]`,
		"broken":        `{"accounts": [`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccounts([]byte(data))
			assert.Error(t, err)
		})
	}
}
