package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gptcli/app"
	"gptcli/config"
	"gptcli/model"
	"gptcli/provider"
	"gptcli/storage"
	"gptcli/ui"
)

const (
	Version = "v0.1.0"
	License = "Apache-2.0"
)

type rootFlags struct {
	provider    string
	model       string
	session     string
	trust       string
	prompt      string
	noTools     bool
	forceTools  bool
	noSummarize bool
	raw         bool
	debug       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gptcli: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "gptcli [prompt]",
		Short:         "Chat with LLM providers from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.prompt == "" && len(args) > 0 {
				flags.prompt = strings.Join(args, " ")
			}
			return runChat(cmd.Context(), flags)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&flags.provider, "provider", "", "provider ID (openai, anthropic, ollama, openrouter, gemini)")
	f.StringVarP(&flags.model, "model", "m", "", "model name")
	f.BoolVar(&flags.debug, "debug", false, "write a debug log to the data directory")

	lf := cmd.Flags()
	lf.StringVarP(&flags.session, "session", "s", "", "session to open (created if missing)")
	lf.StringVar(&flags.trust, "trust", "", "tool trust level: none, read_only or full")
	lf.StringVarP(&flags.prompt, "prompt", "p", "", "send one prompt, print the reply and exit")
	lf.BoolVar(&flags.noTools, "no-tools", false, "disable tool calling")
	lf.BoolVar(&flags.forceTools, "force-tools", false, "require a tool call on the first round")
	lf.BoolVar(&flags.noSummarize, "no-summarize", false, "drop old messages instead of summarizing them")
	lf.BoolVar(&flags.raw, "raw", false, "print replies without markdown rendering")

	cmd.AddCommand(newSessionsCmd(flags))
	cmd.AddCommand(newModelsCmd(flags))
	cmd.AddCommand(newAuthCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// setup loads the configuration, applies flag overrides, starts logging and
// unlocks the credential store when it needs a passphrase.
func setup(flags *rootFlags) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.provider != "" {
		cfg.Provider = flags.provider
		// A model configured for another provider does not apply.
		if flags.model == "" {
			cfg.Model = ""
		}
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.trust != "" {
		cfg.Tools.TrustLevel = flags.trust
	}
	if flags.noTools {
		cfg.Tools.Enabled = false
	}
	if flags.forceTools {
		cfg.Tools.Enabled = true
		cfg.Tools.Force = true
	}
	if flags.noSummarize {
		cfg.Summarization.Enabled = false
	}
	if flags.raw {
		cfg.PrettyPrint = false
	}

	logger, err := config.InitLogger(cfg.DataDir(), flags.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		logger = zap.NewNop()
	}

	if cfg.CredentialsLocked() {
		if !ui.IsTerminal(os.Stdin) {
			return nil, nil, errors.New("credential store is encrypted and stdin is not a terminal")
		}
		pass, err := ui.ReadPassphrase(os.Stdin, os.Stderr, "SSH key passphrase: ")
		if err != nil {
			return nil, nil, err
		}
		if err := cfg.UnlockCredentials(pass); err != nil {
			return nil, nil, err
		}
	}
	return cfg, logger, nil
}

func runChat(ctx context.Context, flags *rootFlags) error {
	cfg, logger, err := setup(flags)
	if err != nil {
		return err
	}
	defer logger.Sync()

	providers := provider.InitializeProviders(cfg, logger)
	if _, ok := providers[cfg.Provider]; !ok {
		hint := ""
		if env := config.APIKeyEnvVar(cfg.Provider); env != "" {
			hint = fmt.Sprintf(" (set %s or run `gptcli auth set %s`)", env, cfg.Provider)
		}
		return fmt.Errorf("provider %q is not available%s", cfg.Provider, hint)
	}

	sessions, err := storage.NewSessionStorage(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to initialize session storage: %w", err)
	}
	history, err := storage.NewHistoryStore(cfg.DataDir())
	if err != nil {
		logger.Warn("usage history unavailable", zap.Error(err))
		history = nil
	} else {
		defer history.Close()
	}

	oneShot := flags.prompt != ""
	interactive := ui.IsTerminal(os.Stdin) && !oneShot
	a, err := app.New(app.Options{
		Config:      cfg,
		Providers:   providers,
		ProviderID:  cfg.Provider,
		Sessions:    sessions,
		History:     history,
		In:          os.Stdin,
		Out:         os.Stdout,
		Interactive: interactive,
		OneShot:     oneShot,
		Width:       ui.TerminalWidth(os.Stdout),
		SessionName: flags.session,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if !oneShot {
		return a.Run(ctx)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := a.Send(ctx, flags.prompt); err != nil {
		return err
	}
	return nil
}

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List saved sessions or search their messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(flags)
			if err != nil {
				return err
			}
			sessions, err := storage.NewSessionStorage(cfg.DataDir())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if query != "" {
				matches, err := storage.NewSearchIndex(sessions).SearchAllSessions(query)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ui.RenderSearchResults(matches))
				return nil
			}
			list, err := sessions.List()
			if err != nil {
				return err
			}
			current, _ := sessions.LoadCurrentSessionName()
			fmt.Fprintln(out, ui.RenderSessionList(list, current))
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "search", "q", "", "search message text")
	return cmd
}

func newModelsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models [query]",
		Short: "List models of the configured providers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			providers := provider.InitializeProviders(cfg, logger)
			if len(providers) == 0 {
				return errors.New("no provider is available")
			}

			var all []model.ModelInfo
			for id, p := range providers {
				models, err := p.ListModels(cmd.Context())
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}
				all = append(all, models...)
			}
			if len(args) == 1 {
				all = ui.FilterModels(all, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderModelList(all, cfg.Model))
			return nil
		},
	}
}

func newAuthCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored API keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <provider>",
		Short: "Store the API key of a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(flags)
			if err != nil {
				return err
			}
			key, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("API key for %s: ", args[0]))
			if err != nil {
				return err
			}
			if key == "" {
				return errors.New("empty key; use `gptcli auth remove` to delete a key")
			}
			if err := cfg.SetAPIKey(args[0], key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored API key for %s (%s).\n", config.ProviderDisplayName(args[0]), cfg.CredentialStore.Method())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <provider>",
		Short: "Delete the stored API key of a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(flags)
			if err != nil {
				return err
			}
			if err := cfg.SetAPIKey(args[0], ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed API key for %s.\n", config.ProviderDisplayName(args[0]))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List providers with a stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(flags)
			if err != nil {
				return err
			}
			ids := cfg.CredentialStore.Providers()
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored API keys.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", id)
			}
			return nil
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and license",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gptcli %s (%s)\n", Version, License)
		},
	}
}

// readSecret reads a line without echo from a terminal, or as plain input
// when stdin is piped.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && ui.IsTerminal(f) {
		s, err := ui.ReadPassphrase(f, out, prompt)
		return strings.TrimSpace(s), err
	}
	line, err := ui.NewLineEditor(in, out, false).ReadLine(context.Background(), prompt)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
