package restyfetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dorank/internal/stats"
)

func TestFetchResourceDecodesProfile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		credits int
	}{
		{
			name:    "numeric string",
			body:    `{"field_org_issue_credit_count":"1234","projects_supported":[{"id":"1"},{"id":"2"}],"case_studies":[{"id":"9"}],"url":"https://www.drupal.test/acme"}`,
			credits: 1234,
		},
		{
			name:    "number",
			body:    `{"field_org_issue_credit_count":98,"projects_supported":[{"id":"1"},{"id":"2"}],"case_studies":[{"id":"9"}],"url":"https://www.drupal.test/acme"}`,
			credits: 98,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api-d7/node/2127245.json", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			client, err := New(Config{BaseURL: server.URL}, nil)
			require.NoError(t, err)

			got, err := client.FetchResource(context.Background(), "2127245")
			require.NoError(t, err)
			require.Equal(t, stats.ProfileMetrics{
				IssueCredits:      tt.credits,
				ProjectsSupported: 2,
				CaseStudies:       1,
				OriginURL:         "https://www.drupal.test/acme",
			}, got)
		})
	}
}

func TestFetchResourceMissingArrays(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"field_org_issue_credit_count":null}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	got, err := client.FetchResource(context.Background(), "1")
	require.NoError(t, err)
	require.Zero(t, got.IssueCredits)
	require.Zero(t, got.ProjectsSupported)
}

func TestFetchResourceStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	_, err = client.FetchResource(context.Background(), "1")

	var fe *stats.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusForbidden, fe.StatusCode)
	require.Equal(t, server.URL+"/api-d7/node/1.json", fe.URL)
}

func TestFetchResourceNetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := New(Config{BaseURL: url}, nil)
	require.NoError(t, err)
	_, err = client.FetchResource(context.Background(), "1")
	require.True(t, stats.IsFetchError(err))
}

func TestFlexIntRejectsGarbage(t *testing.T) {
	t.Parallel()

	var n flexInt
	require.Error(t, json.Unmarshal([]byte(`"lots"`), &n))
	require.NoError(t, json.Unmarshal([]byte(`" 7 "`), &n))
	require.Equal(t, flexInt(7), n)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "https://x.test", ResourcePath: "/node.json"}, nil)
	require.Error(t, err)
}
