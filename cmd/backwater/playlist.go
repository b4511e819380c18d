package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

// PlaylistCreate creates an empty playlist.
func (r *Runner) PlaylistCreate(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<name>")
	if err != nil {
		return err
	}
	return r.with(ctx, cmd, func(a *app) error {
		p, err := a.playlists.Create(ctx, args[0])
		if err != nil {
			return err
		}
		r.printf("created playlist %s", p.ID)
		return nil
	})
}

// PlaylistAppend appends songs in argument order.
func (r *Runner) PlaylistAppend(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 2, "<playlist-id> <song-id...>")
	if err != nil {
		return err
	}
	return r.with(ctx, cmd, func(a *app) error {
		added, err := a.playlists.Append(ctx, args[0], args[1:]...)
		if err != nil {
			return err
		}
		for _, e := range added {
			r.printf("%s\t%g", e.ID, e.Order)
		}
		return nil
	})
}

// PlaylistMove moves one entry.
func (r *Runner) PlaylistMove(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 2, "<playlist-id> <entry-id>")
	if err != nil {
		return err
	}
	top, bottom := cmd.Bool("top"), cmd.Bool("bottom")
	if top && bottom {
		return errors.New("--top and --bottom are exclusive")
	}
	if !top && !bottom && !cmd.IsSet("to") {
		return errors.New("pass --to, --top or --bottom")
	}

	return r.with(ctx, cmd, func(a *app) error {
		var order float64
		var err error
		switch {
		case top:
			order, err = a.playlists.MoveToTop(ctx, args[0], args[1])
		case bottom:
			order, err = a.playlists.MoveToBottom(ctx, args[0], args[1])
		default:
			order, err = a.playlists.Move(ctx, args[0], args[1], int(cmd.Int("to")))
		}
		if err != nil {
			return err
		}
		r.printf("moved %s to order %g", args[1], order)
		return nil
	})
}

// PlaylistNormalize renumbers a playlist, optionally in a new order.
func (r *Runner) PlaylistNormalize(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<playlist-id> [entry-id...]")
	if err != nil {
		return err
	}
	var target []string
	if len(args) > 1 {
		target = args[1:]
	}
	return r.with(ctx, cmd, func(a *app) error {
		if err := a.playlists.Normalize(ctx, args[0], target); err != nil {
			return err
		}
		r.printf("normalized playlist %s", args[0])
		return nil
	})
}

// PlaylistShow prints one playlist's entries, or lists playlists.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		if cmd.Args().Len() == 0 {
			lists, err := a.playlists.List(ctx)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return r.writeJSON(lists)
			}
			tw := r.table()
			fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
			for _, p := range lists {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		}

		id := cmd.Args().First()
		p, err := a.playlists.Get(ctx, id)
		if err != nil {
			return err
		}
		entries, err := a.playlists.Entries(ctx, id)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(map[string]any{"playlist": p, "entries": entries})
		}
		r.printf("%s (%d songs)", p.Name, len(entries))
		tw := r.table()
		fmt.Fprintln(tw, "#\tORDER\tENTRY\tARTIST\tTITLE")
		for i, e := range entries {
			fmt.Fprintf(tw, "%d\t%g\t%s\t%s\t%s\n", i, e.Order, e.ID, e.ArtistName, e.Title)
		}
		return tw.Flush()
	})
}

// PlaylistRemove removes one entry.
func (r *Runner) PlaylistRemove(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 2, "<playlist-id> <entry-id>")
	if err != nil {
		return err
	}
	return r.with(ctx, cmd, func(a *app) error {
		return a.playlists.Remove(ctx, args[0], args[1])
	})
}

// PlaylistDelete deletes a playlist.
func (r *Runner) PlaylistDelete(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<playlist-id>")
	if err != nil {
		return err
	}
	return r.with(ctx, cmd, func(a *app) error {
		return a.playlists.Delete(ctx, args[0])
	})
}
