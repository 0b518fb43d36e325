package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"lyricosd/internal/app"
	"lyricosd/internal/config"
	"lyricosd/internal/indexer"
	"lyricosd/internal/ipc"
	"lyricosd/internal/lrccache"
	"lyricosd/internal/lyrics"
	"lyricosd/internal/player"
	"lyricosd/internal/statusbar"
	"lyricosd/internal/store"
	"lyricosd/internal/tags"
	"lyricosd/pkg/fileutil"
	"lyricosd/pkg/lrc"

	"github.com/rs/zerolog/log"
)

var stdout io.Writer = os.Stdout

const noLyricText = "no lyric available"

func handleIndex(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	workers := fs.Int("workers", cfg.Index.Workers, "Number of files processed concurrently")
	strict := fs.Bool("strict", cfg.Index.Strict, "Abort on the first unreadable directory or failed insert")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	s, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	ix := indexer.New(s, tags.NewFileReader(), indexer.WithWorkers(*workers), indexer.WithStrict(*strict))
	report, err := ix.Index(ctx, fs.Arg(0))
	if report != nil {
		printReport(stdout, report)
	}
	return err
}

func printReport(w io.Writer, r *indexer.Report) {
	fmt.Fprintf(w, "Root:     %s\n", r.Root)
	fmt.Fprintf(w, "Run:      %s\n", r.RunID)
	fmt.Fprintf(w, "Scanned:  %d\n", r.Scanned)
	fmt.Fprintf(w, "Indexed:  %d\n", r.Indexed)
	fmt.Fprintf(w, "Skipped:  %d\n", r.Skipped)
	fmt.Fprintf(w, "Failures: %d\n", len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s: %v\n", f.Path, f.Err)
	}
	fmt.Fprintf(w, "Elapsed:  %s\n", r.Elapsed)
}

func handleNow(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("now", flag.ContinueOnError)
	all := fs.Bool("all", false, "Print the whole lyric file and mark the active line")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}

	probe, err := player.New(cfg.Player.Backend, cfg.Player.BusName, cfg.Player.Timeout)
	if err != nil {
		return err
	}

	s, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	resolver := newResolver(cfg, s, nil)

	snap, err := probe.Current(ctx)
	if err != nil {
		return noLyric(err)
	}

	if *all {
		doc, err := resolver.Document(ctx, snap.Track)
		if err != nil {
			return noLyric(err)
		}
		fmt.Fprintf(stdout, "%s  [%s]\n", snap.Track, lrc.FromDuration(snap.Position))
		printDocument(stdout, doc, lrc.FromDuration(snap.Position+cfg.App.Lead))
		return nil
	}

	line, err := resolver.ResolveCurrentLine(ctx, snap)
	if err != nil {
		return noLyric(err)
	}
	fmt.Fprintln(stdout, line)
	return nil
}

// noLyric prints the placeholder for ordinary outcomes and passes faults on.
func noLyric(err error) error {
	if lyrics.IsNoLyric(err) {
		log.Debug().Err(err).Msg("No lyric available")
		fmt.Fprintln(stdout, noLyricText)
		return nil
	}
	return err
}

// printDocument writes every timed line in file order, marking the one
// active at target.
func printDocument(w io.Writer, doc *lrc.Document, target lrc.TimeTag) {
	lines := doc.Lines()
	active := -1
	if cur, ok := doc.Resolve(target); ok {
		for i, l := range lines {
			if l == cur {
				active = i
			}
		}
	}
	for i, l := range lines {
		marker := "  "
		if i == active {
			marker = "> "
		}
		fmt.Fprintf(w, "%s[%s] %s\n", marker, l.Time, l.Text)
	}
}

func handleWatch(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return errUsage
	}

	probe, err := player.New(cfg.Player.Backend, cfg.Player.BusName, cfg.Player.Timeout)
	if err != nil {
		return err
	}

	s, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	cache, closeCache := newCache(cfg)
	defer closeCache()
	resolver := newResolver(cfg, s, cache)

	server := ipc.NewServer(cfg.App.SocketPath, cfg.App.StateFile)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Close()

	opts := []app.Option{
		app.WithInterval(cfg.App.CheckInterval),
		app.WithIdleText(cfg.App.IdleText),
	}
	if cfg.StatusBar.Signal > 0 {
		notifier := statusbar.New(cfg.StatusBar.Process, cfg.StatusBar.Signal)
		go notifier.Run(ctx)
		opts = append(opts, app.WithNotifier(notifier))
	}

	err = app.New(probe, resolver, server, opts...).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newResolver(cfg *config.Config, s *store.Store, cache lrccache.Cache) *lyrics.Resolver {
	opts := []lyrics.Option{lyrics.WithLead(cfg.App.Lead)}
	if cache != nil {
		opts = append(opts, lyrics.WithCache(cache))
	}
	return lyrics.NewResolver(s, opts...)
}

// newCache builds the configured document cache. An unreachable redis
// falls back to the in-memory cache.
func newCache(cfg *config.Config) (lrccache.Cache, func()) {
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil, func() {}
	case config.CacheRedis:
		c, err := lrccache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.TTL)
		if err == nil {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis lyric cache")
			return c, func() { c.Close() }
		}
		log.Warn().Err(err).Msg("Redis unavailable, using in-memory lyric cache")
	}
	return lrccache.NewMemory(), func() {}
}

func handleNormalize(args []string) error {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	sortLines := fs.Bool("sort", false, "Order lines by time, keeping file order for equal times")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	path := fs.Arg(0)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := lrc.Parse(string(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if *sortLines {
		doc = doc.Sorted()
	}

	if err := fileutil.WriteFileAtomic(path, []byte(doc.String()), info.Mode().Perm()); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("lines", doc.Len()).Bool("sorted", *sortLines).Msg("Normalized lyric file")
	return nil
}

func handlePrune(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	s, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.PruneMissing(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Removed %d stale entries\n", n)
	return nil
}

func handleStats(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	list := fs.Bool("list", false, "List every indexed track")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}

	s, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Store:   %s\n", s.Path())
	fmt.Fprintf(stdout, "Entries: %d\n", n)

	if *list {
		entries, err := s.List(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", e.Name, e.Album, e.Lyrics)
		}
	}
	return nil
}
