package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/sydlexius/backwater/internal/catalog"
	"github.com/sydlexius/backwater/internal/enrichment"
	"github.com/sydlexius/backwater/internal/library"
	"github.com/sydlexius/backwater/internal/provider"
	"github.com/sydlexius/backwater/internal/scanner"
	"github.com/sydlexius/backwater/internal/watcher"
)

// Runner holds the output streams and provides one method per command.
type Runner struct {
	out    io.Writer
	errOut io.Writer
	stdin  io.Reader
}

// NewRunner creates a Runner writing results to out and logs to errOut.
func NewRunner(out, errOut io.Writer) *Runner {
	return &Runner{out: out, errOut: errOut, stdin: os.Stdin}
}

func (r *Runner) open(ctx context.Context, cmd *cli.Command) (*app, error) {
	return openApp(ctx, cmd.String("config"), cmd.String("log-level"), r.errOut)
}

// with opens the app, runs fn, and closes the app.
func (r *Runner) with(ctx context.Context, cmd *cli.Command, fn func(a *app) error) error {
	a, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	if err := fn(a); err != nil {
		a.logger.Error("command failed", slog.String("command", cmd.FullName()), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *Runner) writeJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Runner) table() *tabwriter.Writer {
	return tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
}

func requireArgs(cmd *cli.Command, n int, usage string) ([]string, error) {
	args := cmd.Args().Slice()
	if len(args) < n {
		return nil, fmt.Errorf("usage: %s %s", cmd.FullName(), usage)
	}
	return args, nil
}

// Serve watches folders and runs maintenance until ctx is canceled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		folders, err := a.folders.List(ctx)
		if err != nil {
			return err
		}
		// Catch up on changes made while we were not running.
		for _, f := range folders {
			if _, err := a.scanner.Run(ctx, f.ID); err != nil {
				a.logger.Warn("startup reconcile not started", slog.String("folder", f.Name), slog.String("error", err.Error()))
			}
		}

		w := watcher.NewService(a.scanner, a.folders, a.bus, a.logger, watcher.NewProber(nil, a.logger),
			a.cfg.Library.Extensions, a.cfg.Library.WatchDebounce)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return w.Start(gctx) })
		if interval := a.cfg.Maintenance.Interval; interval > 0 {
			g.Go(func() error {
				a.maintenance.StartScheduler(gctx, interval)
				return nil
			})
		}
		a.logger.Info("backwater serving", slog.Int("folders", len(folders)))
		return g.Wait()
	})
}

// FolderAdd registers a folder.
func (r *Runner) FolderAdd(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<path>")
	if err != nil {
		return err
	}
	return r.with(ctx, cmd, func(a *app) error {
		if !a.fs.DirectoryExists(args[0]) {
			return fmt.Errorf("%s is not a directory", args[0])
		}
		f := &library.Folder{Name: cmd.String("name"), Path: args[0], Watch: !cmd.Bool("no-watch")}
		if err := a.folders.Create(ctx, f); err != nil {
			return err
		}
		r.printf("added folder %s (%s)", f.ID, f.Path)
		if !cmd.Bool("reconcile") {
			return nil
		}
		res, err := a.scanner.Reconcile(ctx, f.ID)
		if err != nil {
			return err
		}
		r.printResults([]*scanner.Result{res})
		return nil
	})
}

// FolderList prints the registered folders.
func (r *Runner) FolderList(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		folders, err := a.folders.List(ctx)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(folders)
		}
		tw := r.table()
		fmt.Fprintln(tw, "ID\tNAME\tWATCH\tPATH")
		for _, f := range folders {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", f.ID, f.Name, f.Watch, f.Path)
		}
		return tw.Flush()
	})
}

// FolderRemove deletes a folder with its songs.
func (r *Runner) FolderRemove(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<folder-id>")
	if err != nil {
		return err
	}
	return r.with(ctx, cmd, func(a *app) error {
		if err := a.folders.Delete(ctx, args[0]); err != nil {
			return err
		}
		r.printf("removed folder %s", args[0])
		return nil
	})
}

// Reconcile reconciles the given folders, or all of them.
func (r *Runner) Reconcile(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		ids := cmd.Args().Slice()
		if len(ids) == 0 {
			folders, err := a.folders.List(ctx)
			if err != nil {
				return err
			}
			for _, f := range folders {
				ids = append(ids, f.ID)
			}
		}

		var results []*scanner.Result
		var errs []error
		for _, id := range ids {
			res, err := a.scanner.Reconcile(ctx, id)
			if res != nil {
				results = append(results, res)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("folder %s: %w", id, err))
				if ctx.Err() != nil {
					break
				}
			}
		}
		if cmd.Bool("json") {
			if err := r.writeJSON(results); err != nil {
				return err
			}
		} else {
			r.printResults(results)
		}
		return errors.Join(errs...)
	})
}

func (r *Runner) printResults(results []*scanner.Result) {
	tw := r.table()
	fmt.Fprintln(tw, "FOLDER\tSTATUS\tADDED\tUPDATED\tREMOVED\tUNCHANGED\tSKIPPED")
	for _, res := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			res.FolderID, res.Status, res.Added, res.Updated, res.Removed, res.Unchanged, res.Skipped)
	}
	tw.Flush() //nolint:errcheck
}

// EnrichArtist enriches one artist by id or name.
func (r *Runner) EnrichArtist(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<artist-id|name>")
	if err != nil {
		return err
	}
	return r.with(ctx, cmd, func(a *app) error {
		artist, err := a.catalog.GetArtist(ctx, args[0])
		if errors.Is(err, catalog.ErrNotFound) {
			artist, err = a.catalog.GetArtistByName(ctx, strings.Join(args, " "))
		}
		if err != nil {
			return err
		}
		if artist == nil {
			return fmt.Errorf("artist %q: %w", strings.Join(args, " "), catalog.ErrNotFound)
		}

		out, err := a.enrichment.EnrichArtist(ctx, artist.ID)
		if errors.Is(err, enrichment.ErrNoResult) {
			r.printf("no provider had data for %s", artist.Name)
			return nil
		}
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(out)
		}
		tw := r.table()
		fmt.Fprintln(tw, "FIELD\tSOURCE\tVALUE")
		for _, field := range slices.Sorted(maps.Keys(out.Fields)) {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", field, out.Sources[field], truncate(out.Fields[field], 60))
		}
		return tw.Flush()
	})
}

// EnrichPending enriches artists without a recorded enrichment.
func (r *Runner) EnrichPending(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		sum, err := a.enrichment.EnrichPending(ctx, int(cmd.Int("limit")))
		r.printf("%s", sum)
		return err
	})
}

// Lyrics fetches lyrics for the given songs or an entire folder.
func (r *Runner) Lyrics(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		ids := cmd.Args().Slice()
		if folderID := cmd.String("folder"); folderID != "" {
			songs, err := a.catalog.ListSongs(ctx, folderID)
			if err != nil {
				return err
			}
			for _, s := range songs {
				if s.LyricsCheckedAt == nil {
					ids = append(ids, s.ID)
				}
			}
		}
		if len(ids) == 0 {
			return errors.New("no songs given; pass song ids or --folder")
		}

		found, missing := 0, 0
		for _, id := range ids {
			l, err := a.enrichment.FetchLyrics(ctx, id)
			switch {
			case errors.Is(err, enrichment.ErrNoResult):
				missing++
			case err != nil:
				return fmt.Errorf("song %s: %w", id, err)
			default:
				found++
				if len(ids) == 1 {
					r.printf("%s", firstNonEmpty(l.Synced, l.Plain, "(instrumental)"))
				}
			}
		}
		if len(ids) > 1 || missing > 0 {
			r.printf("%d with lyrics, %d without", found, missing)
		}
		return nil
	})
}

// ProvidersShow prints the ranking of every category.
func (r *Runner) ProvidersShow(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		rankings := make(map[provider.Category][]provider.RankEntry)
		for _, category := range []provider.Category{provider.CategoryMetadata, provider.CategoryLyrics} {
			entries, err := a.ranks.GetRanking(ctx, category)
			if err != nil {
				return err
			}
			rankings[category] = entries
		}
		if cmd.Bool("json") {
			return r.writeJSON(rankings)
		}

		configured, err := a.creds.Configured(ctx)
		if err != nil {
			return err
		}
		hasCred := make(map[provider.ProviderName]bool, len(configured))
		for _, n := range configured {
			hasCred[n] = true
		}

		tw := r.table()
		fmt.Fprintln(tw, "CATEGORY\tORDER\tPROVIDER\tENABLED\tREQUIRES\tCREDENTIAL")
		for _, category := range []provider.Category{provider.CategoryMetadata, provider.CategoryLyrics} {
			for _, e := range rankings[category] {
				reqs := make([]string, len(e.Requires))
				for i, req := range e.Requires {
					reqs[i] = string(req)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%s\t%t\n",
					category, e.Order, e.ID.DisplayName(), e.Enabled, strings.Join(reqs, ","), hasCred[e.ID])
			}
		}
		return tw.Flush()
	})
}

// ProvidersSet ranks a category from the argument order.
func (r *Runner) ProvidersSet(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<metadata|lyrics> <provider...>")
	if err != nil {
		return err
	}
	category := provider.Category(args[0])
	if category != provider.CategoryMetadata && category != provider.CategoryLyrics {
		return fmt.Errorf("unknown category %q", args[0])
	}

	return r.with(ctx, cmd, func(a *app) error {
		if cmd.Bool("reset") {
			if err := a.ranks.ResetRanking(ctx, category); err != nil {
				return err
			}
			r.printf("%s ranking reset", category)
			return nil
		}
		if len(args) < 2 {
			return errors.New("list at least one provider, or pass --reset")
		}
		current, err := a.ranks.GetRanking(ctx, category)
		if err != nil {
			return err
		}
		entries := rerank(current, args[1:])
		if err := a.ranks.SetRanking(ctx, category, entries); err != nil {
			return err
		}
		r.printf("%s ranking saved", category)
		return nil
	})
}

// rerank enables the named providers in the given order and keeps the rest
// disabled after them. Requirements carry over from the current ranking.
func rerank(current []provider.RankEntry, names []string) []provider.RankEntry {
	byID := make(map[provider.ProviderName]provider.RankEntry, len(current))
	for _, e := range current {
		byID[e.ID] = e
	}
	out := make([]provider.RankEntry, 0, len(current)+len(names))
	listed := make(map[provider.ProviderName]bool, len(names))
	for i, n := range names {
		id := provider.ProviderName(strings.ToLower(n))
		e, ok := byID[id]
		if !ok {
			e = provider.RankEntry{ID: id}
		}
		e.Order = i
		e.Enabled = true
		out = append(out, e)
		listed[id] = true
	}
	for _, e := range current {
		if listed[e.ID] {
			continue
		}
		e.Order = len(out)
		e.Enabled = false
		out = append(out, e)
	}
	return out
}

// CredentialsSet stores a credential, prompting without echo when the value
// is not on the command line.
func (r *Runner) CredentialsSet(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<provider> [value]")
	if err != nil {
		return err
	}
	name := provider.ProviderName(strings.ToLower(args[0]))
	value := ""
	if len(args) > 1 {
		value = args[1]
	} else {
		value, err = r.readSecret(fmt.Sprintf("%s credential: ", name.DisplayName()))
		if err != nil {
			return err
		}
	}
	if value == "" {
		return errors.New("empty credential; use credentials delete to remove one")
	}
	return r.with(ctx, cmd, func(a *app) error {
		if err := a.creds.SetCredential(ctx, name, value); err != nil {
			return err
		}
		r.printf("stored credential for %s", name.DisplayName())
		return nil
	})
}

func (r *Runner) readSecret(prompt string) (string, error) {
	if f, ok := r.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		fmt.Fprint(r.errOut, prompt)
		b, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // fd fits in int
		fmt.Fprintln(r.errOut)
		if err != nil {
			return "", fmt.Errorf("reading credential: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(r.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// CredentialsDelete removes a stored credential.
func (r *Runner) CredentialsDelete(ctx context.Context, cmd *cli.Command) error {
	args, err := requireArgs(cmd, 1, "<provider>")
	if err != nil {
		return err
	}
	return r.with(ctx, cmd, func(a *app) error {
		name := provider.ProviderName(strings.ToLower(args[0]))
		if err := a.creds.DeleteCredential(ctx, name); err != nil {
			return err
		}
		r.printf("deleted credential for %s", name.DisplayName())
		return nil
	})
}

// CredentialsList prints providers with a stored credential.
func (r *Runner) CredentialsList(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		names, err := a.creds.Configured(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			r.printf("%s", n)
		}
		return nil
	})
}

// Maintenance runs one maintenance pass.
func (r *Runner) Maintenance(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, cmd, func(a *app) error {
		rep, err := a.maintenance.Run(ctx)
		if err != nil {
			return err
		}
		if cmd.Bool("vacuum") {
			if err := a.maintenance.Vacuum(ctx); err != nil {
				return err
			}
		}
		r.printf("removed %d albums and %d artists in %s", rep.AlbumsRemoved, rep.ArtistsRemoved, rep.Duration)
		return nil
	})
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
