package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiclient "github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/api/client"
)

const (
	defaultAPIBase = "http://localhost:4000"
	requestTimeout = 15 * time.Second
)

var buildVersion = "dev"

type app struct {
	v      *viper.Viper
	client *apiclient.Client
	token  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "deployctl",
		Short:         "Operate the deployment server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.PersistentFlags().String("api", "", "API base URL (env DEPLOYCTL_API)")
	root.PersistentFlags().String("token", "", "access token (env DEPLOYCTL_TOKEN)")
	root.PersistentFlags().String("config", "", "config file (default $XDG_CONFIG_HOME/deployctl/config.yaml)")

	root.AddCommand(
		a.loginCmd(),
		a.projectsCmd(),
		a.deploymentsCmd(),
		a.deploymentCmd(),
		a.triggerCmd(),
		a.retryCmd(),
		a.cancelCmd(),
		a.queuesCmd(),
		a.queueCmd(),
		a.refreshQueueCmd(),
		a.cancelPendingCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the CLI version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(buildVersion))
			},
		},
	)
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	a.v.SetEnvPrefix("DEPLOYCTL")
	a.v.AutomaticEnv()
	a.v.SetDefault("api", defaultAPIBase)
	if err := a.v.BindPFlag("api", cmd.Flags().Lookup("api")); err != nil {
		return err
	}
	if err := a.v.BindPFlag("token", cmd.Flags().Lookup("token")); err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return err
		}
	}
	a.v.SetConfigFile(path)
	if err := a.v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	client, err := apiclient.New(a.v.GetString("api"))
	if err != nil {
		return err
	}
	a.client = client
	a.token = strings.TrimSpace(a.v.GetString("token"))
	return nil
}

func (a *app) saveConfig(api, token string) (string, error) {
	path := a.v.ConfigFileUsed()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	out := viper.New()
	out.Set("api", api)
	out.Set("token", token)
	if err := out.WriteConfigAs(path); err != nil {
		return "", err
	}
	return path, os.Chmod(path, 0o600)
}

func (a *app) requireToken() (string, error) {
	if a.token == "" {
		return "", errors.New("no access token: run 'deployctl login' or set DEPLOYCTL_TOKEN")
	}
	return a.token, nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

func defaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "deployctl", "config.yaml"), nil
}
