package main

import "github.com/urfave/cli/v3"

func (r *Runner) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Watch folders and run scheduled maintenance until interrupted",
			Action: r.Serve,
		},
		{
			Name:  "folder",
			Usage: "Manage library folders",
			Commands: []*cli.Command{
				{
					Name:      "add",
					Usage:     "Register a folder",
					ArgsUsage: "<path>",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "name", Usage: "Display name (defaults to the directory name)"},
						&cli.BoolFlag{Name: "no-watch", Usage: "Do not watch the folder for changes"},
						&cli.BoolFlag{Name: "reconcile", Usage: "Reconcile the folder right away"},
					},
					Action: r.FolderAdd,
				},
				{
					Name:   "list",
					Usage:  "List folders",
					Flags:  []cli.Flag{jsonFlag()},
					Action: r.FolderList,
				},
				{
					Name:      "remove",
					Usage:     "Remove a folder and its songs",
					ArgsUsage: "<folder-id>",
					Action:    r.FolderRemove,
				},
			},
		},
		{
			Name:      "reconcile",
			Usage:     "Reconcile folders with the database",
			ArgsUsage: "[folder-id...]",
			Flags:     []cli.Flag{jsonFlag()},
			Action:    r.Reconcile,
		},
		{
			Name:  "enrich",
			Usage: "Fetch artist metadata from the ranked providers",
			Commands: []*cli.Command{
				{
					Name:      "artist",
					Usage:     "Enrich one artist by id or exact name",
					ArgsUsage: "<artist-id|name>",
					Flags:     []cli.Flag{jsonFlag()},
					Action:    r.EnrichArtist,
				},
				{
					Name:  "pending",
					Usage: "Enrich artists that were never enriched",
					Flags: []cli.Flag{
						&cli.IntFlag{Name: "limit", Usage: "Maximum artists to process", Value: 100},
					},
					Action: r.EnrichPending,
				},
			},
		},
		{
			Name:      "lyrics",
			Usage:     "Fetch lyrics for songs",
			ArgsUsage: "[song-id...]",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "folder", Usage: "Fetch for every unchecked song in this folder"},
			},
			Action: r.Lyrics,
		},
		{
			Name:  "playlist",
			Usage: "Manage playlists",
			Commands: []*cli.Command{
				{
					Name:      "create",
					Usage:     "Create a playlist",
					ArgsUsage: "<name>",
					Action:    r.PlaylistCreate,
				},
				{
					Name:      "append",
					Usage:     "Append songs to the end of a playlist",
					ArgsUsage: "<playlist-id> <song-id...>",
					Action:    r.PlaylistAppend,
				},
				{
					Name:      "move",
					Usage:     "Move an entry to a zero-based position",
					ArgsUsage: "<playlist-id> <entry-id>",
					Flags: []cli.Flag{
						&cli.IntFlag{Name: "to", Usage: "Target index"},
						&cli.BoolFlag{Name: "top", Usage: "Move to the first position"},
						&cli.BoolFlag{Name: "bottom", Usage: "Move to the last position"},
					},
					Action: r.PlaylistMove,
				},
				{
					Name:      "normalize",
					Usage:     "Renumber entries to 1..N, optionally in a new order",
					ArgsUsage: "<playlist-id> [entry-id...]",
					Action:    r.PlaylistNormalize,
				},
				{
					Name:      "show",
					Usage:     "Show a playlist, or list playlists when no id is given",
					ArgsUsage: "[playlist-id]",
					Flags:     []cli.Flag{jsonFlag()},
					Action:    r.PlaylistShow,
				},
				{
					Name:      "remove",
					Usage:     "Remove an entry from a playlist",
					ArgsUsage: "<playlist-id> <entry-id>",
					Action:    r.PlaylistRemove,
				},
				{
					Name:      "delete",
					Usage:     "Delete a playlist",
					ArgsUsage: "<playlist-id>",
					Action:    r.PlaylistDelete,
				},
			},
		},
		{
			Name:  "providers",
			Usage: "Inspect and rank enrichment providers",
			Commands: []*cli.Command{
				{
					Name:   "show",
					Usage:  "Show the ranking of each category",
					Flags:  []cli.Flag{jsonFlag()},
					Action: r.ProvidersShow,
				},
				{
					Name:      "set",
					Usage:     "Rank a category; listed providers are enabled in order, others disabled",
					ArgsUsage: "<metadata|lyrics> <provider...>",
					Flags: []cli.Flag{
						&cli.BoolFlag{Name: "reset", Usage: "Restore the configured default ranking"},
					},
					Action: r.ProvidersSet,
				},
			},
		},
		{
			Name:  "credentials",
			Usage: "Manage stored provider credentials",
			Commands: []*cli.Command{
				{
					Name:      "set",
					Usage:     "Store a credential; prompts when no value is given",
					ArgsUsage: "<provider> [value]",
					Action:    r.CredentialsSet,
				},
				{
					Name:      "delete",
					Usage:     "Delete a stored credential",
					ArgsUsage: "<provider>",
					Action:    r.CredentialsDelete,
				},
				{
					Name:   "list",
					Usage:  "List providers with a stored credential",
					Action: r.CredentialsList,
				},
			},
		},
		{
			Name:  "maintenance",
			Usage: "Sweep orphans and optimize the database now",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "vacuum", Usage: "Also rebuild the database file"},
			},
			Action: r.Maintenance,
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output JSON"}
}
