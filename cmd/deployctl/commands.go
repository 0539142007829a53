package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/api/client"
)

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, raw)
	}
	return id, nil
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the API URL and access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := a.token
			if token == "" {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return errors.New("--token is required when stdin is not a terminal")
				}
				fmt.Fprint(cmd.OutOrStdout(), "Access token: ")
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				token = strings.TrimSpace(string(raw))
			}
			if token == "" {
				return errors.New("empty token")
			}
			path, err := a.saveConfig(a.v.GetString("api"), token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials saved to %s\n", path)
			return nil
		},
	}
}

func (a *app) projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List configured projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			projects, err := a.client.ListProjects(ctx, token)
			if err != nil {
				return err
			}
			renderProjects(cmd.OutOrStdout(), projects)
			return nil
		},
	}
}

func (a *app) deploymentsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "deployments PROJECT_ID",
		Short: "List recent deployments of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			list, err := a.client.ListDeployments(ctx, token, projectID, limit)
			if err != nil {
				return err
			}
			renderDeployments(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of deployments")
	return cmd
}

func (a *app) deploymentCmd() *cobra.Command {
	var showLog bool
	cmd := &cobra.Command{
		Use:   "deployment DEPLOYMENT_ID",
		Short: "Show a deployment with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "deployment")
			if err != nil {
				return err
			}
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			d, err := a.client.GetDeployment(ctx, token, id)
			if err != nil {
				return err
			}
			renderDeploymentDetail(cmd.OutOrStdout(), d, showLog)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showLog, "log", false, "print the full deployment log")
	return cmd
}

func (a *app) triggerCmd() *cobra.Command {
	var input apiclient.TriggerInput
	cmd := &cobra.Command{
		Use:   "trigger PROJECT_ID",
		Short: "Start a manual deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			d, err := a.client.TriggerDeployment(ctx, token, projectID, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deployment %d %s (%s@%s)\n", d.ID, d.Status, d.Branch, shortSHA(d.CommitHash))
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Branch, "branch", "", "branch to deploy (default: project target branch)")
	cmd.Flags().StringVar(&input.Commit, "commit", "", "commit to deploy")
	cmd.Flags().StringVar(&input.Message, "message", "", "commit message to record")
	return cmd
}

func (a *app) retryCmd() *cobra.Command {
	return a.deploymentAction("retry", "Retry a failed or cancelled deployment", (*apiclient.Client).RetryDeployment)
}

func (a *app) cancelCmd() *cobra.Command {
	return a.deploymentAction("cancel", "Cancel a waiting or running deployment", (*apiclient.Client).CancelDeployment)
}

type deploymentCall func(c *apiclient.Client, ctx context.Context, token string, id int64) (apiclient.Deployment, error)

func (a *app) deploymentAction(use, short string, call deploymentCall) *cobra.Command {
	return &cobra.Command{
		Use:   use + " DEPLOYMENT_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "deployment")
			if err != nil {
				return err
			}
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			d, err := call(a.client, ctx, token, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deployment %d %s\n", d.ID, d.Status)
			return nil
		},
	}
}

func (a *app) queuesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show every project queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			queues, err := a.client.Queues(ctx, token)
			if err != nil {
				return err
			}
			renderQueues(cmd.OutOrStdout(), queues)
			return nil
		},
	}
}

func (a *app) queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue PROJECT_ID",
		Short: "Show one project queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			status, err := a.client.Queue(ctx, token, projectID)
			if err != nil {
				return err
			}
			renderQueues(cmd.OutOrStdout(), []apiclient.QueueStatus{status})
			return nil
		},
	}
}

func (a *app) refreshQueueCmd() *cobra.Command {
	var maxConcurrent int
	cmd := &cobra.Command{
		Use:   "refresh-queue PROJECT_ID",
		Short: "Re-apply a project's concurrency limit, optionally changing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			status, err := a.client.RefreshQueue(ctx, token, projectID, maxConcurrent)
			if err != nil {
				return err
			}
			renderQueues(cmd.OutOrStdout(), []apiclient.QueueStatus{status})
			return nil
		},
	}
	cmd.Flags().IntVar(&maxConcurrent, "max", 0, "new concurrency limit")
	return cmd
}

func (a *app) cancelPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-pending PROJECT_ID",
		Short: "Cancel every queued deployment of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			token, err := a.requireToken()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			n, err := a.client.CancelPending(ctx, token, projectID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d queued deployment(s)\n", n)
			return nil
		},
	}
}
