// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

const version = "0.3.0"

// newApp builds the root command. The --config flag is read by [Runner.configure] before any action runs.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "a2s",
		Usage:   "Submit audio and video files to Audio2Sub and track their transcriptions",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Before:   r.configure,
		Commands: r.register(),
	}
}

// uploadFlags are the transcription parameters shared by every submitting command.
//
// Unset flags fall back to the [upload] section of the config.
func uploadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "model",
			Aliases: []string{"m"},
			Usage:   "Transcription model (tiny, base, small, medium, large-v3, turbo)",
		},
		&cli.StringFlag{
			Name:    "language",
			Aliases: []string{"l"},
			Usage:   "Spoken language code, or auto",
		},
		&cli.StringFlag{
			Name:  "output-format",
			Usage: "Subtitle format: srt, vtt or both",
		},
		&cli.StringFlag{
			Name:  "task",
			Usage: "transcribe or translate",
		},
	}
}

func waitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "Block until the job finishes",
		},
		&cli.BoolFlag{
			Name:  "download",
			Usage: "Download subtitle files once finished (implies --wait)",
		},
		&cli.StringFlag{
			Name:    "output-dir",
			Aliases: []string{"o"},
			Usage:   "Directory for downloaded subtitles (default: download.output_dir)",
		},
	}
}

// healthCommand reports whether the service is up.
func healthCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the transcription service health",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Health,
	}
}

// modelsCommand lists the model catalogue.
func modelsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List available transcription models",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Models,
	}
}

// submitCommand uploads a single file.
func submitCommand(r *Runner) *cli.Command {
	flags := append(uploadFlags(), waitFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:    "export",
			Aliases: []string{"e"},
			Usage:   "Write the transcript as txt, markdown or json once finished",
		},
		&cli.StringFlag{
			Name:  "export-path",
			Usage: "Transcript path (default: {file_id}.{ext})",
		},
	)

	return &cli.Command{
		Name:      "submit",
		Aliases:   []string{"upload"},
		Usage:     "Upload one media file for transcription",
		ArgsUsage: "<file>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags:  flags,
		Action: r.Submit,
	}
}

// batchCommand uploads up to 50 files as one batch.
func batchCommand(r *Runner) *cli.Command {
	flags := append(uploadFlags(), waitFlags()...)
	flags = append(flags,
		&cli.IntFlag{
			Name:  "concurrent-limit",
			Usage: "Files the server transcribes in parallel (1-10)",
		},
		&cli.StringFlag{
			Name:  "manifest",
			Usage: "Write the batch summary as json, csv or markdown once finished",
		},
	)

	return &cli.Command{
		Name:      "batch",
		Usage:     "Upload several media files as one batch",
		ArgsUsage: "<files...>",
		Flags:     flags,
		Action:    r.Batch,
	}
}

// statusCommand shows a single task.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the state of a task",
		ArgsUsage: "<task_id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task_id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// batchStatusCommand shows the aggregated state of a batch.
func batchStatusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "batch-status",
		Usage:     "Show the progress of a batch",
		ArgsUsage: "<batch_id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "batch_id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.BatchStatus,
	}
}

// batchResultCommand fetches the summary of a finished batch.
func batchResultCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "batch-result",
		Usage:     "Fetch the result summary of a completed batch",
		ArgsUsage: "<batch_id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "batch_id"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "manifest",
				Usage: "Write the summary as json, csv or markdown instead of printing it",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Manifest path (default: batch_{id}.{ext})",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Record the summary in the local history",
			},
		},
		Action: r.BatchResult,
	}
}

// downloadCommand fetches generated subtitle files.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download subtitle files of a finished task",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "task-id",
				Usage: "Download every file of a successful task",
			},
			&cli.StringFlag{
				Name:  "file-id",
				Usage: "File ID of a single artifact (requires --filename)",
			},
			&cli.StringFlag{
				Name:  "filename",
				Usage: "Artifact filename, e.g. lecture.srt",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Target directory (default: download.output_dir)",
			},
			&cli.StringFlag{
				Name:  "manifest",
				Usage: "Manifest format: json or csv",
				Value: "json",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent downloads (default: download.workers)",
			},
			&cli.FloatFlag{
				Name:  "rate-limit",
				Usage: "Requests per second (default: download.rate_limit)",
			},
		},
		Action: r.Download,
	}
}

// watchCommand follows an existing task or batch until it finishes.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow an already submitted task or batch",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "task",
				Usage: "Task ID to follow",
			},
			&cli.StringFlag{
				Name:  "file-id",
				Usage: "File ID of the task",
			},
			&cli.StringFlag{
				Name:  "filename",
				Usage: "Display name of the task",
			},
			&cli.StringFlag{
				Name:  "batch",
				Usage: "Batch ID to follow",
			},
			&cli.IntFlag{
				Name:  "total",
				Usage: "Number of files in the batch, if known",
			},
		},
		Action: r.Watch,
	}
}

// tuiCommand returns the top-level TUI command for the live dashboard.
func tuiCommand(r *Runner) *cli.Command {
	flags := append(uploadFlags(),
		&cli.IntFlag{
			Name:  "concurrent-limit",
			Usage: "Files the server transcribes in parallel (1-10)",
		},
		&cli.StringSliceFlag{
			Name:  "task",
			Usage: "Existing task ID to track (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "batch",
			Usage: "Existing batch ID to track (repeatable)",
		},
	)

	return &cli.Command{
		Name:      "tui",
		Aliases:   []string{"interactive", "ui"},
		Usage:     "Launch the interactive dashboard, optionally submitting files",
		ArgsUsage: "[files...]",
		Flags:     flags,
		Action:    r.TUI,
	}
}

// serveCommand runs the bridge server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Expose the live state over HTTP and a websocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.StringSliceFlag{
				Name:  "origin",
				Usage: "Allowed CORS origin (repeatable, default: *)",
			},
		},
		Action: r.Serve,
	}
}

// historyCommand lists persisted results.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List completed transcriptions from the local database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "batches",
				Usage: "List batch summaries instead of transcriptions",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}
