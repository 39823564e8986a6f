package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/pagetree"
	"github.com/hupe1980/pagetree/blobstore"
	"github.com/hupe1980/pagetree/blobstore/minio"
	"github.com/hupe1980/pagetree/blobstore/s3"
	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/snapshot"
)

type env struct {
	global   globalFlags
	logLevel slog.Level
	stdout   io.Writer
	stderr   io.Writer
}

type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"put", "put TREE KEY VALUE", "store a value", cmdPut},
		{"get", "get TREE KEY", "print a value", cmdGet},
		{"del", "del TREE KEY", "remove a key", cmdDel},
		{"trees", "trees", "list tree names", cmdTrees},
		{"inspect", "inspect", "print page usage", cmdInspect},
		{"dump", "dump TREE", "write a Graphviz digraph of a tree", cmdDump},
		{"export", "export DEST [-compression C]", "write a snapshot to a file, s3://bucket/key or minio://bucket/key", cmdExport},
		{"import", "import SRC", "restore a snapshot into a new store", cmdImport},
		{"bench", "bench [-workers W -ops N -rate R]", "run a concurrent load", cmdBench},
	}
}

func (e *env) options() []pagetree.Option {
	return []pagetree.Option{
		pagetree.WithLogger(pagetree.NewLogger(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: e.logLevel}))),
		pagetree.WithPaging(e.paging),
	}
}

func (e *env) paging(o *paging.Options) {
	o.PageSize = e.global.pageSize
}

func (e *env) open(extra ...pagetree.Option) (*pagetree.DB, error) {
	return pagetree.OpenFile(e.global.file, e.global.size, append(e.options(), extra...)...)
}

func withDB(e *env, fn func(db *pagetree.DB) error) (err error) {
	db, err := e.open()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, db.Close()) }()
	return fn(db)
}

func needArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s", errUsage, usage)
	}
	return nil
}

func cmdPut(_ context.Context, e *env, args []string) error {
	if err := needArgs(args, 3, "put TREE KEY VALUE"); err != nil {
		return err
	}
	key, err := parseValue(args[1])
	if err != nil {
		return err
	}
	val, err := parseValue(args[2])
	if err != nil {
		return err
	}
	return withDB(e, func(db *pagetree.DB) error {
		tree, err := db.Tree(args[0])
		if err != nil {
			return err
		}
		prev, existed, err := tree.Put(key, val)
		if err != nil {
			return err
		}
		if existed {
			fmt.Fprintf(e.stdout, "replaced %s\n", prev)
		}
		return db.Sync()
	})
}

func cmdGet(_ context.Context, e *env, args []string) error {
	if err := needArgs(args, 2, "get TREE KEY"); err != nil {
		return err
	}
	key, err := parseValue(args[1])
	if err != nil {
		return err
	}
	return withDB(e, func(db *pagetree.DB) error {
		tree, ok, err := db.LookupTree(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("tree %q not found", args[0])
		}
		val, found, err := tree.Get(key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %s not found", key)
		}
		fmt.Fprintln(e.stdout, formatValue(val))
		return nil
	})
}

func cmdDel(_ context.Context, e *env, args []string) error {
	if err := needArgs(args, 2, "del TREE KEY"); err != nil {
		return err
	}
	key, err := parseValue(args[1])
	if err != nil {
		return err
	}
	return withDB(e, func(db *pagetree.DB) error {
		tree, ok, err := db.LookupTree(args[0])
		if err != nil || !ok {
			return err
		}
		prev, removed, err := tree.Remove(key)
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(e.stdout, "removed %s\n", prev)
		}
		return db.Sync()
	})
}

func cmdTrees(_ context.Context, e *env, args []string) error {
	if err := needArgs(args, 0, "trees"); err != nil {
		return err
	}
	return withDB(e, func(db *pagetree.DB) error {
		names, err := db.TreeNames()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(e.stdout, name)
		}
		return nil
	})
}

func cmdInspect(_ context.Context, e *env, args []string) error {
	if err := needArgs(args, 0, "inspect"); err != nil {
		return err
	}
	return withDB(e, func(db *pagetree.DB) error {
		s, err := db.Inspect()
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "page size:       %d\n", s.PageSize)
		fmt.Fprintf(e.stdout, "pages:           %d allocated of %d\n", s.AllocatedPages, s.PageCount)
		fmt.Fprintf(e.stdout, "reachable pages: %d (%d chain)\n", s.ReachablePages, s.ChainPages)
		fmt.Fprintf(e.stdout, "leaked pages:    %d\n", len(s.LeakedPages))
		fmt.Fprintf(e.stdout, "trees:           %d (%d empty)\n", s.Trees, s.EmptyTrees)
		fmt.Fprintf(e.stdout, "entries:         %d (%d tombstones)\n", s.Entries, s.Tombstones)
		fmt.Fprintf(e.stdout, "heap used:       %d bytes\n", s.HeapUsed)
		return nil
	})
}

func cmdDump(_ context.Context, e *env, args []string) error {
	if err := needArgs(args, 1, "dump TREE"); err != nil {
		return err
	}
	return withDB(e, func(db *pagetree.DB) error {
		tree, ok, err := db.LookupTree(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("tree %q not found", args[0])
		}
		return tree.Dump(e.stdout)
	})
}

func cmdExport(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	compression := fs.String("compression", "zstd", "none, snappy, lz4 or zstd")
	batch := fs.Int("batch", snapshot.DefaultOptions.BatchPages, "pages per frame")
	limit := fs.Int64("limit", 0, "write at most this many bytes per second (0 = unlimited)")
	if err := fs.Parse(reorder(args)); err != nil {
		return errUsage
	}
	if err := needArgs(fs.Args(), 1, "export DEST [-compression C]"); err != nil {
		return err
	}
	c, err := snapshot.ParseCompression(*compression)
	if err != nil {
		return err
	}

	store, name, err := openStore(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return withDB(e, func(db *pagetree.DB) error {
		m, err := db.Backup(ctx, store, name, func(o *snapshot.Options) {
			o.Compression = c
			o.BatchPages = *batch
			o.BytesPerSecond = *limit
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "exported %d pages (%s) as %s\n", m.UsedPages, m.Compression, m.ID)
		return nil
	})
}

func cmdImport(ctx context.Context, e *env, args []string) (err error) {
	if err := needArgs(args, 1, "import SRC"); err != nil {
		return err
	}
	store, name, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}

	m, err := snapshot.Inspect(ctx, store, name)
	if err != nil {
		return err
	}
	size := e.global.size
	if size == 0 {
		size = int64(m.PageCount) * int64(m.PageSize)
	}

	space, err := paging.OpenFile(e.global.file, size, func(o *paging.Options) {
		o.PageSize = m.PageSize
		o.Refs = m.Refs
		o.PageNums = m.PageNums
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, space.Close()) }()

	db, err := pagetree.Restore(ctx, store, name, space, e.options()...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, db.Close()) }()

	names, err := db.TreeNames()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "imported %d pages, %d trees\n", m.UsedPages, len(names))
	return nil
}

// openStore resolves a snapshot location: s3://bucket/key, minio://bucket/key
// or a local path.
func openStore(ctx context.Context, target string) (blobstore.BlobStore, string, error) {
	scheme, _, ok := strings.Cut(target, "://")
	if !ok {
		abs, err := filepath.Abs(target)
		if err != nil {
			return nil, "", err
		}
		return blobstore.NewLocalStore(filepath.Dir(abs)), filepath.Base(abs), nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, "", err
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, "", fmt.Errorf("invalid %s location %q", scheme, target)
	}

	switch scheme {
	case "s3":
		var opts []s3.Option
		if endpoint := os.Getenv("PAGETREE_S3_ENDPOINT"); endpoint != "" {
			opts = append(opts, s3.WithEndpoint(endpoint))
		}
		store, err := s3.New(ctx, u.Host, opts...)
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	case "minio":
		endpoint := os.Getenv("PAGETREE_MINIO_ENDPOINT")
		if endpoint == "" {
			return nil, "", errors.New("PAGETREE_MINIO_ENDPOINT is not set")
		}
		store, err := minio.New(ctx, minio.Config{
			Endpoint:  endpoint,
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Secure:    os.Getenv("PAGETREE_MINIO_INSECURE") == "",
			Bucket:    u.Host,
		})
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	default:
		return nil, "", fmt.Errorf("unsupported scheme %q", scheme)
	}
}

// reorder moves flags ahead of positional arguments so that
// "export out.snap -compression lz4" parses.
func reorder(args []string) []string {
	var flags, rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			flags = append(flags, a)
			if !strings.Contains(a, "=") && i+1 < len(args) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		rest = append(rest, a)
	}
	return append(flags, rest...)
}
