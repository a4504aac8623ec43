package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"inkwell/internal/app"
	"inkwell/internal/backup"
	"inkwell/internal/config"
	"inkwell/internal/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "AddVoice", "Run").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts twice for a new passphrase without echoing.
func readPassphrase() (string, error) {
	fmt.Print("Backup passphrase: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	fmt.Print("Confirm passphrase: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	if len(first) == 0 {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	return string(first), nil
}

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Capture staging and export pipeline",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and backup keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		passphrase, err := readPassphrase()
		if err != nil {
			return err
		}
		encryptor := backup.NewAgeEncryptor(cfg.Backup)
		if err := encryptor.Setup(passphrase); err != nil {
			return fmt.Errorf("generating backup keys: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Vault Root:  %s\n", cfg.Vault.Root)
		fmt.Printf("Transcriber: %s\n", cfg.Transcriber.Command)
		fmt.Printf("Archive:     %s\n", cfg.Archive.Type)
		return nil
	},
}

// capture command
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Manage captures",
}

var captureAddVoiceCmd = &cobra.Command{
	Use:   "voice AUDIO_FILE",
	Short: "Register a voice memo for transcription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "AddVoice")
		if err != nil {
			return err
		}
		defer a.Close()

		capture, err := a.AddVoiceCapture(args[0])
		if err != nil {
			return fmt.Errorf("adding voice capture: %w", err)
		}

		fmt.Printf("Staged voice capture %s\n", capture.ID)
		return nil
	},
}

var captureAddEmailCmd = &cobra.Command{
	Use:   "email MESSAGE_ID [FILE]",
	Short: "Register a forwarded email (body from FILE or stdin)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body []byte
		var err error
		if len(args) == 2 {
			body, err = os.ReadFile(args[1])
		} else {
			body, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading email body: %w", err)
		}

		a, err := newApp(cmd, "AddEmail")
		if err != nil {
			return err
		}
		defer a.Close()

		capture, err := a.AddEmailCapture(args[0], string(body))
		if err != nil {
			return fmt.Errorf("adding email capture: %w", err)
		}

		fmt.Printf("Staged email capture %s\n", capture.ID)
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Recover, transcribe, and export pending captures",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Run")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}

		fmt.Printf("Processed %d capture(s), exported %d, mirrored %d\n",
			result.Processed, result.Exported, result.Mirrored)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Status")
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Status()
		if err != nil {
			return err
		}

		statuses := make([]string, 0, len(snap.ByStatus))
		for s := range snap.ByStatus {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)

		fmt.Println("Captures:")
		for _, s := range statuses {
			fmt.Printf("  %-22s %d\n", s, snap.ByStatus[model.Status(s)])
		}
		fmt.Printf("Worker: processed=%d failed=%d retried=%d\n",
			snap.Worker.Processed, snap.Worker.Failed, snap.Worker.Retried)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list STATUS",
	Short: "List captures in a given status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "List")
		if err != nil {
			return err
		}
		defer a.Close()

		captures, err := a.List(args[0])
		if err != nil {
			return err
		}

		if len(captures) == 0 {
			fmt.Println("No captures.")
			return nil
		}

		for _, c := range captures {
			fmt.Printf("%s  %-5s  %s  %s\n",
				c.ID, c.Source, c.CreatedAt.Format("2006-01-02 15:04:05"), c.ChannelNativeID)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show CAPTURE_ID",
	Short: "Show a capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Show")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Show(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:        %s\n", c.ID)
		fmt.Printf("Source:    %s\n", c.Source)
		fmt.Printf("Native ID: %s\n", c.ChannelNativeID)
		fmt.Printf("Status:    %s\n", c.Status)
		if c.ContentHash != nil {
			fmt.Printf("Hash:      %s\n", *c.ContentHash)
		}
		fmt.Printf("Created:   %s\n", c.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated:   %s\n", c.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Meta:      %s\n", c.MetaJSON)
		if c.RawContent != nil {
			fmt.Printf("\n%s\n", strings.TrimRight(*c.RawContent, "\n"))
		}
		return nil
	},
}

// errors command
var errorsCmd = &cobra.Command{
	Use:   "errors CAPTURE_ID",
	Short: "Show the error log for a capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Errors")
		if err != nil {
			return err
		}
		defer a.Close()

		logs, err := a.Errors(args[0])
		if err != nil {
			return err
		}

		if len(logs) == 0 {
			fmt.Println("No errors recorded.")
			return nil
		}

		for _, e := range logs {
			escalation := ""
			if e.EscalationAction != nil {
				escalation = "  escalation:" + *e.EscalationAction
			}
			fmt.Printf("#%d  %s  %-18s  attempts:%d%s\n    %s\n",
				e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.ErrorType,
				e.AttemptCount, escalation, e.Message)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write an encrypted snapshot of the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.Backup()
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Snapshot written to %s\n", path)
		return nil
	},
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inkwell %s\n", version)
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	captureCmd.AddCommand(captureAddVoiceCmd)
	captureCmd.AddCommand(captureAddEmailCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}
