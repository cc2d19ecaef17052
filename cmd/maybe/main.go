package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	apiclient "github.com/GeneCodeSavvy/maybe-vercel/pkg/client"
)

var buildVersion = "dev"

type CLI struct {
	API     string           `name:"api" env:"MAYBE_VERCEL_API" default:"http://localhost:9000" help:"API base URL."`
	Version kong.VersionFlag `name:"version" help:"Show version and exit."`

	Deploy deployCmd `cmd:"" help:"Deploy a git repository and stream its build log."`
	Status statusCmd `cmd:"" help:"Show a project."`
	Logs   logsCmd   `cmd:"" help:"Stream a running build's log."`
}

type deployCmd struct {
	GitURL string `arg:"" name:"git-url" help:"Repository to deploy."`
	Detach bool   `short:"d" help:"Return after the project is queued."`
}

func (c deployCmd) Run(ctx context.Context, client *apiclient.Client) error {
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	p, err := client.CreateProject(reqCtx, c.GitURL)
	cancel()
	if err != nil {
		return err
	}
	fmt.Printf("project %s queued\nurl: %s\n", p.ID, p.URL)
	if c.Detach {
		return nil
	}
	if err := follow(ctx, client, p.Channel); err != nil {
		return err
	}
	fmt.Printf("deployed: %s\n", p.URL)
	return nil
}

type statusCmd struct {
	ProjectID string `arg:"" name:"project-id"`
}

func (c statusCmd) Run(ctx context.Context, client *apiclient.Client) error {
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	p, err := client.GetProject(reqCtx, c.ProjectID)
	if err != nil {
		return err
	}
	fmt.Printf("project:  %s\nrepo:     %s\nurl:      %s\nchannel:  %s\ncreated:  %s\n",
		p.ID, p.GitURL, p.URL, p.Channel, p.CreatedAt.Format(time.RFC3339))
	if p.Build != "" {
		fmt.Printf("status:   %s\n", p.Build)
	}
	return nil
}

type logsCmd struct {
	ProjectID string `arg:"" name:"project-id"`
}

func (c logsCmd) Run(ctx context.Context, client *apiclient.Client) error {
	return follow(ctx, client, domain.LogChannel(strings.TrimSpace(c.ProjectID)))
}

func follow(ctx context.Context, client *apiclient.Client, channel string) error {
	return client.Follow(ctx, channel, func(line string) {
		fmt.Println(line)
	})
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("maybe"),
		kong.Description("Deploy static sites from git repositories."),
		kong.Vars{"version": buildVersion},
	)

	client, err := apiclient.New(cli.API)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))

	if err := kctx.Run(client); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
