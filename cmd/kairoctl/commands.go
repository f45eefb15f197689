package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"kairopi/pkg/client"
)

func newApp() *cli.Command {
	waitFlags := []cli.Flag{
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "status poll interval",
			Value: client.DefaultPollInterval,
		},
		&cli.DurationFlag{
			Name:  "not-found-grace",
			Usage: "how long an unknown job id is retried before giving up",
			Value: client.DefaultNotFoundGrace,
		},
	}

	return &cli.Command{
		Name:  "kairoctl",
		Usage: "submit greeting cards for video rendering and follow the jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Usage:   "base URL of the KairoPi API",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("KAIROPI_API_URL"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-request HTTP timeout",
				Value: 30 * time.Second,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "queue a render for a card document",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "card",
						Usage: "path to the card JSON document (cardData)",
					},
					&cli.StringFlag{
						Name:  "prompt",
						Usage: "scene description for the video",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "poll until the job finishes",
					},
				}, waitFlags...),
				Action: submitAction,
			},
			{
				Name:      "status",
				Usage:     "print the current job record",
				ArgsUsage: "<jobId>",
				Action:    statusAction,
			},
			{
				Name:      "wait",
				Usage:     "poll a job until it completes or fails",
				ArgsUsage: "<jobId>",
				Flags:     waitFlags,
				Action:    waitAction,
			},
		},
	}
}

func newClient(cmd *cli.Command) *client.Client {
	return client.New(cmd.String("api"), &http.Client{Timeout: cmd.Duration("timeout")})
}

func submitAction(ctx context.Context, cmd *cli.Command) error {
	card := json.RawMessage(`{}`)
	if path := cmd.String("card"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read card: %w", err)
		}
		if !json.Valid(raw) {
			return fmt.Errorf("card %s is not valid JSON", path)
		}
		card = raw
	}

	c := newClient(cmd)
	jobID, err := c.RequestVideo(ctx, card, cmd.String("prompt"))
	if err != nil {
		return err
	}
	out := cmd.Root().Writer
	fmt.Fprintln(out, jobID)

	if !cmd.Bool("wait") {
		return nil
	}
	return follow(ctx, cmd, c, jobID)
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	jobID, err := jobIDArg(cmd)
	if err != nil {
		return err
	}
	job, err := newClient(cmd).VideoStatus(ctx, jobID)
	if err != nil {
		return err
	}
	return printJob(cmd.Root().Writer, job)
}

func waitAction(ctx context.Context, cmd *cli.Command) error {
	jobID, err := jobIDArg(cmd)
	if err != nil {
		return err
	}
	return follow(ctx, cmd, newClient(cmd), jobID)
}

func follow(ctx context.Context, cmd *cli.Command, c *client.Client, jobID string) error {
	out := cmd.Root().Writer
	c.NotFoundGrace = cmd.Duration("not-found-grace")
	c.OnUpdate = func(job *client.Job) {
		fmt.Fprintf(out, "%s\t%s\n", job.JobID, job.Status)
	}

	job, err := c.Wait(ctx, jobID, cmd.Duration("interval"))
	if err != nil {
		return err
	}
	if err := printJob(out, job); err != nil {
		return err
	}
	if job.Status == client.StatusError {
		return fmt.Errorf("job %s failed: %s", job.JobID, job.ErrorMessage)
	}
	return nil
}

func jobIDArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", errors.New("expected exactly one <jobId> argument")
	}
	return cmd.Args().First(), nil
}

func printJob(w io.Writer, job *client.Job) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
