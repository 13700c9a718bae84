package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	os.Unsetenv("STORE_DRIVER")

	cfg, err := Load("esim-service")
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Store.Driver != StoreMongo {
		t.Fatalf("expected mongo driver by default, got %q", cfg.Store.Driver)
	}
	if cfg.QR.TTL != 24*time.Hour {
		t.Fatalf("expected 24h qr ttl, got %s", cfg.QR.TTL)
	}
	if len(cfg.Providers.Entries) != 4 {
		t.Fatalf("expected entries for all four providers, got %d", len(cfg.Providers.Entries))
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")
	if _, err := Load("esim-service"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestProductionRequiresSigningKey(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "memory")

	cases := []struct {
		name    string
		key     *string
		wantErr bool
	}{
		{"unset", nil, true},
		{"empty", strPtr(""), true},
		{"default", strPtr(DefaultJWTSigningKey), true},
		{"custom", strPtr("a-long-random-production-key"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.key == nil {
				t.Setenv("JWT_SIGNING_KEY", "")
				os.Unsetenv("JWT_SIGNING_KEY")
			} else {
				t.Setenv("JWT_SIGNING_KEY", *tc.key)
			}
			_, err := Load("esim-service")
			if (err != nil) != tc.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDevelopmentAllowsDefaultSigningKey(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SIGNING_KEY", "")
	os.Unsetenv("JWT_SIGNING_KEY")

	cfg, err := Load("esim-service")
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.JWT.SigningKey != DefaultJWTSigningKey {
		t.Fatalf("expected default key outside production, got %q", cfg.JWT.SigningKey)
	}
}

func strPtr(s string) *string { return &s }

func TestProvidersFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	content := `providers:
  mpt:
    endpoint: https://mpt.test/esim
    token: file-token
  OOREDOO:
    endpoint: https://ooredoo.test/soap
    username: soap-user
    password: soap-pass
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write providers file: %v", err)
	}
	t.Setenv("PROVIDERS_CONFIG", path)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("MPT_API_TOKEN", "env-token")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load("esim-service")
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	mpt := cfg.Providers.Entries["MPT"]
	if mpt.Endpoint != "https://mpt.test/esim" || mpt.Token != "env-token" {
		t.Fatalf("unexpected MPT entry: %+v", mpt)
	}
	if cfg.Providers.Entries["OOREDOO"].Username != "soap-user" {
		t.Fatalf("unexpected OOREDOO entry: %+v", cfg.Providers.Entries["OOREDOO"])
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
}

func TestMaskDSN(t *testing.T) {
	cases := map[string]string{
		"mongodb://user:secret@db:27017": "mongodb://***MASKED***@db:27017",
		"mongodb://localhost:27017":      "mongodb://localhost:27017",
	}
	for in, want := range cases {
		if got := maskDSN(in); got != want {
			t.Fatalf("maskDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
