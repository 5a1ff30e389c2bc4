package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		want    string
		wantErr error
	}{
		{
			name: "kv v1",
			data: map[string]any{"connection_string": "Data Source=/srv/budgetease.db"},
			want: "Data Source=/srv/budgetease.db",
		},
		{
			name: "kv v2 envelope",
			data: map[string]any{
				"data":     map[string]any{"connection_string": "Data Source=app.db"},
				"metadata": map[string]any{"version": 3},
			},
			want: "Data Source=app.db",
		},
		{
			name:    "missing field",
			data:    map[string]any{"password": "hunter2"},
			wantErr: ErrInvalidSecret,
		},
		{
			name:    "wrong type",
			data:    map[string]any{"connection_string": []int{1, 2}},
			wantErr: ErrInvalidSecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeConnectionString(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ConnectionString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s.test", r.Header.Get("X-Vault-Token"))
		switch r.URL.Path {
		case "/v1/secret/data/budgetease":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"data":{"connection_string":"Data Source=/var/lib/budgetease.db"},"metadata":{"version":1}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), WithAddress(srv.URL), WithToken("s.test"))
	require.NoError(t, err)

	conn, err := c.ConnectionString(context.Background(), "secret/data/budgetease")
	require.NoError(t, err)
	assert.Equal(t, "Data Source=/var/lib/budgetease.db", conn)

	_, err = c.ConnectionString(context.Background(), "secret/data/missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}
