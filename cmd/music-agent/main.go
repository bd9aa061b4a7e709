// Command music-agent controls music playback in plain language. The first
// command starts a background daemon that keeps listening to what plays.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/justestif/go-music-agent/internal/config"
	"github.com/justestif/go-music-agent/internal/daemon"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errCommandFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand.
type cli struct {
	v   *viper.Viper
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}
	var status, stop bool

	root := &cobra.Command{
		Use:   "music-agent [command words...]",
		Short: "Control your music in plain language",
		Long: `music-agent sends a plain-language command to the music daemon,
starting the daemon in the background when it is not running.

Examples:
  music-agent play some mellow music
  music-agent like this
  music-agent what's that song where they say 'encumbered forever'`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env file is fine.
			_ = godotenv.Load()
			cfg, err := config.Load(c.v)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case status:
				return c.admin(cmd.Context(), daemon.OpStatus)
			case stop:
				return c.admin(cmd.Context(), daemon.OpStop)
			case len(args) == 0:
				return cmd.Help()
			}
			return c.command(cmd.Context(), strings.Join(args, " "))
		},
	}
	// Command words are never flags once the first word is seen.
	root.Flags().SetInterspersed(false)
	root.Flags().BoolVar(&status, "status", false, "report daemon status")
	root.Flags().BoolVar(&stop, "stop", false, "stop the daemon")
	root.MarkFlagsMutuallyExclusive("status", "stop")

	bindConfigFlags(root.PersistentFlags(), c.v)
	root.AddCommand(newDaemonCmd(c))
	return root
}

// bindConfigFlags exposes the configuration keys as flags. A flag that is
// set wins over MUSIC_AGENT_* variables.
func bindConfigFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("data-dir", "", "data directory (default ~/.music_agent)")
	fs.String("socket-path", "", "daemon socket path")
	fs.String("db-path", "", "SQLite file or postgres:// DSN")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("player", config.PlayerSpotify, "playback backend: spotify or mpd")
	fs.String("http-addr", "", "admin HTTP address, disabled when empty")
	fs.Duration("poll-interval", 0, "how often the daemon checks what is playing")

	for key, flag := range map[string]string{
		config.KeyDataDir:      "data-dir",
		config.KeySocketPath:   "socket-path",
		config.KeyDBPath:       "db-path",
		config.KeyLogLevel:     "log-level",
		config.KeyPlayer:       "player",
		config.KeyHTTPAddr:     "http-addr",
		config.KeyPollInterval: "poll-interval",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
