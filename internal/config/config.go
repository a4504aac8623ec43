package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for inkwell.
type Config struct {
	InstanceID  string            `toml:"instance_id"`
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	Ledger      LedgerConfig      `toml:"ledger"`
	Vault       VaultConfig       `toml:"vault"`
	Worker      WorkerConfig      `toml:"worker"`
	Transcriber TranscriberConfig `toml:"transcriber"`
	Archive     ArchiveConfig     `toml:"archive"`
	Backup      BackupConfig      `toml:"backup"`
}

// LedgerConfig represents configuration for the capture ledger.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LedgerConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for the export vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem
}

// WorkerConfig tunes the transcription worker.
type WorkerConfig struct {
	QueueCeiling   int `toml:"queue_ceiling"`           // max queued+in-flight captures; defaults to 256
	AttemptTimeout int `toml:"attempt_timeout_seconds"` // per-attempt budget; defaults to 30
}

// TranscriberConfig represents configuration for the transcription backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type TranscriberConfig struct {
	Type    string   `toml:"type"`              // "command" or "stub"
	Command string   `toml:"command,omitempty"` // transcriber binary path (type=command)
	Args    []string `toml:"args,omitempty"`    // extra arguments before the audio path
}

// ArchiveConfig represents configuration for the off-site export mirror.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "none", "s3", or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// Static credentials. When empty the standard AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// BackupConfig holds paths to the age key pair used to encrypt ledger snapshots.
type BackupConfig struct {
	Dir            string `toml:"dir"` // where encrypted snapshots land
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Ledger: LedgerConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "ledger"),
		},
		Vault: VaultConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "vault"),
		},
		Transcriber: TranscriberConfig{
			Type:    "command",
			Command: "whisper-transcribe",
		},
		Archive: ArchiveConfig{
			Type: "none",
		},
		Backup: BackupConfig{
			Dir:            filepath.Join(baseDir, "backup"),
			PublicKeyPath:  filepath.Join(baseDir, "keys", "inkwell.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "inkwell.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
