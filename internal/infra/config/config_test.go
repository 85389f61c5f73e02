package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, StoreSQLite, cfg.StoreDriver)
	require.Equal(t, AuthXaman, cfg.AuthProvider)
	require.Equal(t, "https://xrplcluster.com/", cfg.XRPLRPCEndpoint)
	require.Equal(t, int64(5*1024*1024), cfg.MaxImageBytes)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.OTelEnabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Firestore ")
	t.Setenv("GCP_PROJECT_ID", "bop-prod")
	t.Setenv("AUTH_PROVIDER", "address")
	t.Setenv("MODERATOR_UIDS", "uid-1, ,uid-2")
	t.Setenv("MODERATION_MAIL_TO", "a@example.com,b@example.com")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("BOP_NFT_ISSUER", " rIssuer ")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreFirestore, cfg.StoreDriver)
	require.Equal(t, "bop-prod", cfg.GetFirestoreProjectID())
	require.Equal(t, "bop-prod", cfg.GetFirebaseProjectID())
	require.Equal(t, "bop-prod", cfg.GetSecretsProjectID())
	require.Equal(t, AuthAddress, cfg.AuthProvider)
	require.Equal(t, []string{"uid-1", "uid-2"}, cfg.ModeratorUIDs)
	require.Len(t, cfg.ModerationMailTo, 2)
	require.True(t, cfg.OTelEnabled)
	require.Equal(t, "rIssuer", cfg.BOPIssuer)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown store":           {"STORE_DRIVER": "mongo"},
		"postgres without url":    {"STORE_DRIVER": "postgres", "DATABASE_URL": ""},
		"firestore without proj":  {"STORE_DRIVER": "firestore", "GCP_PROJECT_ID": "", "FIRESTORE_PROJECT_ID": ""},
		"unknown auth provider":   {"AUTH_PROVIDER": "metamask"},
		"non-positive image size": {"MAX_IMAGE_BYTES": "0"},
		"malformed bool":          {"OTEL_ENABLED": "maybe"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
