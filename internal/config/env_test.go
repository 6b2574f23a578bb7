package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	content := `# Test env file
MT_KEY1=value1
MT_KEY2="quoted value"
export MT_KEY3='single quoted'
# Comment
MT_KEY4=value4
`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	for _, k := range []string{"MT_KEY1", "MT_KEY2", "MT_KEY3", "MT_KEY4"} {
		os.Unsetenv(k)
		defer os.Unsetenv(k)
	}

	if err := loadEnvFile(envFile); err != nil {
		t.Fatalf("loadEnvFile failed: %v", err)
	}

	if os.Getenv("MT_KEY1") != "value1" {
		t.Errorf("MT_KEY1 not set correctly: %s", os.Getenv("MT_KEY1"))
	}
	if os.Getenv("MT_KEY2") != "quoted value" {
		t.Errorf("MT_KEY2 not set correctly: %s", os.Getenv("MT_KEY2"))
	}
	if os.Getenv("MT_KEY3") != "single quoted" {
		t.Errorf("MT_KEY3 not set correctly: %s", os.Getenv("MT_KEY3"))
	}
	if os.Getenv("MT_KEY4") != "value4" {
		t.Errorf("MT_KEY4 not set correctly: %s", os.Getenv("MT_KEY4"))
	}
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	if err := os.WriteFile(envFile, []byte(`MT_EXISTING=new_value`), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MT_EXISTING", "original_value")

	if err := loadEnvFile(envFile); err != nil {
		t.Fatalf("loadEnvFile failed: %v", err)
	}

	if os.Getenv("MT_EXISTING") != "original_value" {
		t.Error("loadEnvFile should not override existing env vars")
	}
}

func TestGetEnvDefault(t *testing.T) {
	os.Unsetenv("MT_DEFAULT_KEY")

	if got := GetEnvDefault("MT_DEFAULT_KEY", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %s", got)
	}

	t.Setenv("MT_DEFAULT_KEY", "actual")

	if got := GetEnvDefault("MT_DEFAULT_KEY", "fallback"); got != "actual" {
		t.Errorf("Expected actual, got %s", got)
	}
}

func TestResolveEnvWithAliases(t *testing.T) {
	os.Unsetenv("MEDITIME_PUSH_DISCORD_TOKEN")
	os.Unsetenv("DISCORD_BOT_TOKEN")
	os.Unsetenv("DISCORD_TOKEN")

	if got := ResolveEnvWithAliases("MEDITIME_PUSH_DISCORD_TOKEN"); got != "" {
		t.Error("Expected empty when no keys set")
	}

	t.Setenv("DISCORD_TOKEN", "second_alias")
	if got := ResolveEnvWithAliases("MEDITIME_PUSH_DISCORD_TOKEN"); got != "second_alias" {
		t.Errorf("Expected second_alias, got %s", got)
	}

	t.Setenv("DISCORD_BOT_TOKEN", "first_alias")
	if got := ResolveEnvWithAliases("MEDITIME_PUSH_DISCORD_TOKEN"); got != "first_alias" {
		t.Errorf("Expected first_alias to win, got %s", got)
	}

	t.Setenv("MEDITIME_PUSH_DISCORD_TOKEN", "canonical")
	if got := ResolveEnvWithAliases("MEDITIME_PUSH_DISCORD_TOKEN"); got != "canonical" {
		t.Errorf("Expected canonical, got %s", got)
	}
}
